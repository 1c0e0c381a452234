// Пакет model — доменные типы аналитики: сводка по форме,
// аналитика по вопросу, анализ трендов.
package model

import "time"

// TrendPeriod — гранулярность анализа трендов.
type TrendPeriod string

const (
	PeriodHour  TrendPeriod = "hour"
	PeriodDay   TrendPeriod = "day"
	PeriodWeek  TrendPeriod = "week"
	PeriodMonth TrendPeriod = "month"
)

// ValidPeriod сообщает, допустима ли гранулярность тренда.
func ValidPeriod(p TrendPeriod) bool {
	switch p {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// DateRange — необязательный диапазон дат выборки аналитики.
// Нулевые значения означают отсутствие границы.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero сообщает, задан ли диапазон.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// FormSummary — агрегированная сводка по форме.
// Завершённым считается ответ с заполненным completion_seconds.
type FormSummary struct {
	FormID             string    `json:"form_id"`
	TotalResponses     int64     `json:"total_responses"`
	CompletedResponses int64     `json:"completed_responses"`
	PartialResponses   int64     `json:"partial_responses"`
	// Доля завершённых ответов в процентах
	CompletionRate    float64   `json:"completion_rate"`
	UniqueRespondents int64     `json:"unique_respondents"`
	FirstResponseAt   time.Time `json:"first_response_at,omitempty"`
	LastResponseAt    time.Time `json:"last_response_at,omitempty"`
	// Среднее время заполнения формы в секундах
	AvgCompletionSeconds float64 `json:"avg_completion_seconds"`
	// Количество ответов по дням за последние 7 дней
	ResponsesByDay []DayCount `json:"responses_by_day"`
}

// DayCount — количество ответов за один день.
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// QuestionAnalytics — распределение ответов по одному вопросу формы.
type QuestionAnalytics struct {
	FormID       string `json:"form_id"`
	QuestionID   string `json:"question_id"`
	TotalAnswers int64  `json:"total_answers"`
	// Доля ответов формы, в которых вопрос заполнен / пропущен, в процентах
	ResponseRate float64       `json:"response_rate"`
	SkipRate     float64       `json:"skip_rate"`
	Distribution []AnswerCount `json:"distribution"`
}

// AnswerCount — количество и доля одного варианта ответа.
type AnswerCount struct {
	Value      string  `json:"value"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TrendAnalysis — динамика количества ответов по периодам.
type TrendAnalysis struct {
	FormID         string      `json:"form_id"`
	Period         TrendPeriod `json:"period"`
	TotalResponses int64       `json:"total_responses"`
	// Максимум и среднее количество ответов на период
	PeakResponses int64        `json:"peak_responses"`
	AvgPerPeriod  float64      `json:"avg_per_period"`
	Points        []TrendPoint `json:"points"`
}

// TrendPoint — одна точка тренда.
type TrendPoint struct {
	// Начало периода в формате RFC3339
	PeriodStart time.Time `json:"period_start"`
	Count       int64     `json:"count"`
}

// CacheStats — счётчики работы кэша запросов.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	// Количество ключей в кэше на момент запроса
	Keys int64 `json:"keys"`
}

// InvalidateRequest — запрос административной инвалидации кэша.
// Ровно одна из областей: форма, вопрос внутри формы или весь кэш.
type InvalidateRequest struct {
	FormID     string `json:"form_id,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	All        bool   `json:"all,omitempty"`
}

// InvalidateResult — результат инвалидации.
type InvalidateResult struct {
	// Количество удалённых ключей
	Invalidated int `json:"invalidated"`
}
