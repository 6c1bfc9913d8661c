package gateway

import (
	"fmt"
	"strings"

	"notify-broker/internal/domain"
)

// Render собирает заголовок и тело в текст сообщения провайдера
// согласно режиму форматирования канала.
func Render(mode domain.FormatMode, title, body string) string {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return body
	}
	if body == "" {
		if mode == domain.FormatMarkdown {
			return fmt.Sprintf("*%s*", title)
		}
		return title
	}
	if mode == domain.FormatMarkdown {
		return fmt.Sprintf("*%s*\n\n%s", title, body)
	}
	return fmt.Sprintf("%s\n\n%s", title, body)
}

// Truncate обрезает текст до limit рун, не разрывая строку посередине,
// если перенос находится недалеко от границы.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := limit
	for i := limit; i > limit-200 && i > 0; i-- {
		if runes[i-1] == '\n' {
			cut = i - 1
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), "\n")
}
