// Пакет cache — кэш запросов аналитики поверх key-value хранилища:
// детерминированная композиция ключей, cache-aside чтение и
// инвалидация по областям без лишних и пропущенных ключей.
package cache

import (
	"sort"
	"strings"
	"time"
)

// Пространство имён всех ключей кэша аналитики.
const keyNamespace = "analytics"

// Типы кэшируемых ресурсов. Входят в ключ вторым сегментом.
const (
	ResourceFormSummary       = "form_summary"
	ResourceQuestionAnalytics = "question_analytics"
	ResourceTrendAnalysis     = "trend_analysis"
)

// BuildKey строит детерминированный ключ кэша:
//
//	analytics:<resource>:<field1>:<value1>:<field2>:<value2>...
//
// Компоненты сортируются по имени поля, поэтому ключ не зависит
// от порядка добавления. Значения очищаются от ':' и метасимволов
// glob-паттернов — иначе значение могло бы имитировать границу
// компонента или совпасть с чужими ключами при инвалидации.
func BuildKey(resource string, components map[string]string) string {
	fields := make([]string, 0, len(components))
	for f := range components {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(resource)
	for _, f := range fields {
		b.WriteByte(':')
		b.WriteString(sanitize(f))
		b.WriteByte(':')
		b.WriteString(sanitize(components[f]))
	}
	return b.String()
}

// SummaryKey — ключ сводки по форме с необязательным диапазоном дат.
func SummaryKey(formID string, start, end time.Time) string {
	c := map[string]string{"form_id": formID}
	addDateRange(c, start, end)
	return BuildKey(ResourceFormSummary, c)
}

// QuestionKey — ключ аналитики по вопросу.
func QuestionKey(formID, questionID string, start, end time.Time) string {
	c := map[string]string{
		"form_id":     formID,
		"question_id": questionID,
	}
	addDateRange(c, start, end)
	return BuildKey(ResourceQuestionAnalytics, c)
}

// TrendKey — ключ анализа трендов. Гранулярность периода входит
// в ключ: тренды по дням и по неделям кэшируются раздельно.
func TrendKey(formID, period string, start, end time.Time) string {
	c := map[string]string{
		"form_id": formID,
		"period":  period,
	}
	addDateRange(c, start, end)
	return BuildKey(ResourceTrendAnalysis, c)
}

// addDateRange добавляет границы диапазона дат в компоненты ключа.
// Даты нормализуются в UTC RFC3339, чтобы одинаковые моменты времени
// в разных зонах давали одинаковый ключ.
func addDateRange(c map[string]string, start, end time.Time) {
	if !start.IsZero() {
		c["start_date"] = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		c["end_date"] = end.UTC().Format(time.RFC3339)
	}
}

// Разделитель ключа и метасимволы glob-паттернов. Значение вроде "f?"
// или "f[12]" иначе совпало бы при инвалидации с чужими ключами.
var keySanitizer = strings.NewReplacer(
	":", "_",
	"*", "_",
	"?", "_",
	"[", "_",
	"]", "_",
	`\`, "_",
)

// sanitize убирает из значения символы-разделители ключа и метасимволы паттернов.
func sanitize(s string) string {
	return keySanitizer.Replace(s)
}

// formScopePatterns возвращает паттерны, покрывающие все ключи формы.
// Двойной паттерн нужен для точной границы: "form_id:f1" в конце ключа
// и "form_id:f1:" в середине. Одиночный паттерн "form_id:f1*" зацепил бы
// и form_id:f12.
func formScopePatterns(formID string) []string {
	id := sanitize(formID)
	return []string{
		keyNamespace + ":*:form_id:" + id,
		keyNamespace + ":*:form_id:" + id + ":*",
	}
}

// questionScopePatterns возвращает паттерны ключей одного вопроса формы.
// Поле question_id сортируется после form_id, поэтому в ключе оно всегда
// правее.
func questionScopePatterns(formID, questionID string) []string {
	fid := sanitize(formID)
	qid := sanitize(questionID)
	return []string{
		keyNamespace + ":*:form_id:" + fid + ":*question_id:" + qid,
		keyNamespace + ":*:form_id:" + fid + ":*question_id:" + qid + ":*",
	}
}

// allScopePattern — паттерн всех ключей кэша аналитики.
func allScopePattern() string {
	return keyNamespace + ":*"
}
