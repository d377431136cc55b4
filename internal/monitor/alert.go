package monitor

import (
	"fmt"
	"strings"

	"vkwatch/internal/fanout"
	"vkwatch/internal/fetcher"
	"vkwatch/internal/storage"
	"vkwatch/pkg/tgui"
)

const (
	unknownAuthor = "Неизвестный пользователь"
	unknownCity   = "не указан"

	alertTextRunes = 500
	previewRunes   = 50
)

// Permalink is the canonical comment URL and the dedup key.
func Permalink(groupID, postID, commentID int64) string {
	return fmt.Sprintf("https://vk.com/wall-%d_%d?reply=%d", groupID, postID, commentID)
}

func UserLink(userID int64) string { return fmt.Sprintf("https://vk.com/id%d", userID) }

func GroupLink(domain string) string { return "https://vk.com/" + domain }

// withPlaceholders fills unknown author fields.
func withPlaceholders(a fetcher.Author) fetcher.Author {
	if strings.TrimSpace(a.DisplayName) == "" {
		a.DisplayName = unknownAuthor
	}
	if strings.TrimSpace(a.City) == "" {
		a.City = unknownCity
	}
	return a
}

// RenderAlert formats a matched comment as Telegram HTML.
func RenderAlert(m storage.MatchedComment, photoURL string) fanout.Alert {
	b := tgui.New()
	b.Line("⚡ Хром работал 24/7 и обнаружил комментарий, необходимо включиться!").Blank()
	b.HTML(tgui.Raw("💬 " + tgui.B("Текст комментария:").String()))
	b.Line(m.AuthorName + ": " + tgui.TruncRunes(m.Text, alertTextRunes, "")).Blank()
	b.HTML(tgui.Labeled("🔗", "Ссылка на страницу пользователя", m.AuthorLink))
	b.HTML(tgui.Labeled("🌍", "Город", m.City))
	b.HTML(tgui.Labeled("🔗", "Ссылка на комментарий", m.Permalink))
	b.HTML(tgui.Labeled("🔗", "Ссылка на группу", GroupLink(m.Domain)))
	b.HTML(tgui.Labeled("🔍", "Маркер", m.Keyword))
	return fanout.Alert{Text: b.Text(), PhotoURL: photoURL}
}
