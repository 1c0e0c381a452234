// Пакет warehouse — чтение агрегатов из хранилища ответов (PostgreSQL).
// Все запросы read-only; запись ответов выполняет другой сервис.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formsight/formsight/internal/analytics/model"
	"github.com/formsight/formsight/internal/database"
)

// ErrFormNotFound — форма с указанным ID не зарегистрирована.
var ErrFormNotFound = errors.New("форма не найдена")

// Warehouse — интерфейс чтения агрегатов по ответам формы.
type Warehouse interface {
	// FormSummary возвращает сводку по форме за диапазон дат.
	FormSummary(ctx context.Context, formID string, r model.DateRange) (*model.FormSummary, error)
	// QuestionAnalytics возвращает распределение ответов по вопросу.
	QuestionAnalytics(ctx context.Context, formID, questionID string, r model.DateRange) (*model.QuestionAnalytics, error)
	// TrendAnalysis возвращает динамику ответов по периодам.
	TrendAnalysis(ctx context.Context, formID string, period model.TrendPeriod, r model.DateRange) (*model.TrendAnalysis, error)
}

// pgWarehouse — реализация Warehouse через pgx.
type pgWarehouse struct {
	db database.DBTX
}

// New создаёт хранилище агрегатов.
func New(db database.DBTX) Warehouse {
	return &pgWarehouse{db: db}
}

// formExists проверяет регистрацию формы.
func (w *pgWarehouse) formExists(ctx context.Context, formID string) error {
	var exists bool
	err := w.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM forms WHERE form_id = $1)`, formID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки формы: %w", err)
	}
	if !exists {
		return ErrFormNotFound
	}
	return nil
}

// rangeFilter строит SQL-фрагмент фильтра по диапазону дат.
// column подставляется из фиксированного списка вызывающих, не из ввода.
func rangeFilter(column string, r model.DateRange, args []any) (string, []any) {
	clause := ""
	if !r.Start.IsZero() {
		args = append(args, r.Start)
		clause += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if !r.End.IsZero() {
		args = append(args, r.End)
		clause += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}
	return clause, args
}

// FormSummary считает агрегаты по ответам формы одним запросом
// плюс отдельный запрос распределения по дням за последние 7 суток.
// Завершённым считается ответ с заполненным completion_seconds.
func (w *pgWarehouse) FormSummary(ctx context.Context, formID string, r model.DateRange) (*model.FormSummary, error) {
	if err := w.formExists(ctx, formID); err != nil {
		return nil, err
	}

	args := []any{formID}
	filter, args := rangeFilter("submitted_at", r, args)

	query := `
		SELECT
			COUNT(*),
			COUNT(completion_seconds),
			COUNT(*) - COUNT(completion_seconds),
			COUNT(DISTINCT user_id),
			COALESCE(MIN(submitted_at), 'epoch'::timestamptz),
			COALESCE(MAX(submitted_at), 'epoch'::timestamptz),
			COALESCE(AVG(completion_seconds), 0)
		FROM form_responses
		WHERE form_id = $1` + filter

	s := &model.FormSummary{FormID: formID}
	var first, last time.Time
	err := w.db.QueryRow(ctx, query, args...).Scan(
		&s.TotalResponses, &s.CompletedResponses, &s.PartialResponses,
		&s.UniqueRespondents, &first, &last, &s.AvgCompletionSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сводки: %w", err)
	}
	if s.TotalResponses > 0 {
		s.FirstResponseAt = first
		s.LastResponseAt = last
		s.CompletionRate = float64(s.CompletedResponses) / float64(s.TotalResponses) * 100
	}

	byDay, err := w.responsesByDay(ctx, formID)
	if err != nil {
		return nil, err
	}
	s.ResponsesByDay = byDay

	return s, nil
}

// responsesByDay — количество ответов по дням за последние 7 суток.
func (w *pgWarehouse) responsesByDay(ctx context.Context, formID string) ([]model.DayCount, error) {
	rows, err := w.db.Query(ctx, `
		SELECT to_char(date_trunc('day', submitted_at), 'YYYY-MM-DD'), COUNT(*)
		FROM form_responses
		WHERE form_id = $1 AND submitted_at >= now() - interval '7 days'
		GROUP BY 1
		ORDER BY 1`, formID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения распределения по дням: %w", err)
	}
	defer rows.Close()

	out := []model.DayCount{}
	for rows.Next() {
		var d model.DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// totalResponses — количество ответов формы за диапазон дат.
func (w *pgWarehouse) totalResponses(ctx context.Context, formID string, r model.DateRange) (int64, error) {
	args := []any{formID}
	filter, args := rangeFilter("submitted_at", r, args)

	var total int64
	err := w.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM form_responses WHERE form_id = $1`+filter, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта ответов: %w", err)
	}
	return total, nil
}

// QuestionAnalytics возвращает распределение вариантов ответа на вопрос
// с долями от общего количества. PK витрины — (response_id, question_id),
// поэтому количество ответов на вопрос равно количеству ответивших.
func (w *pgWarehouse) QuestionAnalytics(ctx context.Context, formID, questionID string, r model.DateRange) (*model.QuestionAnalytics, error) {
	if err := w.formExists(ctx, formID); err != nil {
		return nil, err
	}

	args := []any{formID, questionID}
	filter, args := rangeFilter("submitted_at", r, args)

	rows, err := w.db.Query(ctx, `
		SELECT answer_value, COUNT(*)
		FROM response_answers
		WHERE form_id = $1 AND question_id = $2`+filter+`
		GROUP BY answer_value
		ORDER BY COUNT(*) DESC, answer_value`, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аналитики вопроса: %w", err)
	}
	defer rows.Close()

	qa := &model.QuestionAnalytics{
		FormID:       formID,
		QuestionID:   questionID,
		Distribution: []model.AnswerCount{},
	}
	for rows.Next() {
		var ac model.AnswerCount
		if err := rows.Scan(&ac.Value, &ac.Count); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		qa.TotalAnswers += ac.Count
		qa.Distribution = append(qa.Distribution, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range qa.Distribution {
		qa.Distribution[i].Percentage = float64(qa.Distribution[i].Count) / float64(qa.TotalAnswers) * 100
	}

	total, err := w.totalResponses(ctx, formID, r)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		qa.ResponseRate = float64(qa.TotalAnswers) / float64(total) * 100
		qa.SkipRate = 100 - qa.ResponseRate
	}

	return qa, nil
}

// TrendAnalysis группирует ответы по периодам через date_trunc.
func (w *pgWarehouse) TrendAnalysis(ctx context.Context, formID string, period model.TrendPeriod, r model.DateRange) (*model.TrendAnalysis, error) {
	if !model.ValidPeriod(period) {
		return nil, fmt.Errorf("недопустимая гранулярность %q", period)
	}
	if err := w.formExists(ctx, formID); err != nil {
		return nil, err
	}

	args := []any{formID}
	filter, args := rangeFilter("submitted_at", r, args)

	// period прошёл ValidPeriod, подстановка в date_trunc безопасна
	rows, err := w.db.Query(ctx, fmt.Sprintf(`
		SELECT date_trunc('%s', submitted_at), COUNT(*)
		FROM form_responses
		WHERE form_id = $1%s
		GROUP BY 1
		ORDER BY 1`, period, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения трендов: %w", err)
	}
	defer rows.Close()

	ta := &model.TrendAnalysis{
		FormID: formID,
		Period: period,
		Points: []model.TrendPoint{},
	}
	for rows.Next() {
		var p model.TrendPoint
		if err := rows.Scan(&p.PeriodStart, &p.Count); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		ta.TotalResponses += p.Count
		if p.Count > ta.PeakResponses {
			ta.PeakResponses = p.Count
		}
		ta.Points = append(ta.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ta.Points) > 0 {
		ta.AvgPerPeriod = float64(ta.TotalResponses) / float64(len(ta.Points))
	}
	return ta, nil
}
