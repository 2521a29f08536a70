// Package admin renders the read-only operator views. The views are
// pure formatting over store aggregates; authorization happens in the
// engine before they are reached.
package admin

import (
	"fmt"
	"strings"

	"github.com/m3rciful/aromabot/internal/domain"
)

// FormatStats renders the bot statistics view.
func FormatStats(stats domain.FeedbackStats) string {
	var b strings.Builder
	b.WriteString("Статистика бота:\n\n")
	fmt.Fprintf(&b, "Всего пользователей: %d\n", stats.Users)
	fmt.Fprintf(&b, "Всего обращений в поддержку: %d\n", stats.SupportOpen)
	fmt.Fprintf(&b, "Всего выданных рекомендаций: %d\n", stats.Recommended)
	fmt.Fprintf(&b, "Оценок получено: %d\n", stats.Responses)
	if stats.Responses > 0 {
		fmt.Fprintf(&b, "Средняя оценка: %.2f", stats.AverageScore)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSupportList renders the recent support requests, newest first.
func FormatSupportList(requests []domain.SupportRequest) string {
	if len(requests) == 0 {
		return "Обращений в поддержку пока нет."
	}
	var b strings.Builder
	b.WriteString("Последние обращения в поддержку:\n\n")
	for _, req := range requests {
		fmt.Fprintf(&b, "От: %d\n", req.UserID)
		fmt.Fprintf(&b, "Сообщение: %s\n", req.Message)
		if req.PhotoID != "" {
			b.WriteString("Прикреплено фото\n")
		}
		fmt.Fprintf(&b, "Дата: %s\n\n", req.CreatedAt.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}
