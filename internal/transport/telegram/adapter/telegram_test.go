package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"vkwatch/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("split = %q, want [hello]", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2 (%q)", len(got), got)
	}
	if got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("split = %q", got)
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	text := "abcdefg<b>bold</b>"
	got := splitTelegramText(text, 9, "HTML")
	if got[0] != "abcdefg" {
		t.Fatalf("first chunk = %q, want %q", got[0], "abcdefg")
	}
	if strings.Join(got, "") != text {
		t.Fatalf("chunks lost text: %q", got)
	}
}

func TestSplitTelegramTextCyrillicByRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("ж", 25)
	got := splitTelegramText(text, 10, "")
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"forbidden", &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, true},
		{"bad request", &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, true},
		{"flood", &tele.Error{Code: 429, Description: "Too Many Requests"}, false},
		{"server", &tele.Error{Code: 502, Description: "Bad Gateway"}, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tt := range tests {
		got := errors.Is(classify(tt.err), transport.ErrRejected)
		if got != tt.rejected {
			t.Fatalf("%s: rejected = %v, want %v", tt.name, got, tt.rejected)
		}
	}
}

func TestReplyKeyboardLayout(t *testing.T) {
	t.Parallel()
	rm := replyKeyboard([][]string{{"Статус", "Экспорт в Excel"}, {"Проверить сейчас"}})
	if !rm.ResizeKeyboard {
		t.Fatal("keyboard should be resizable")
	}
	if len(rm.ReplyKeyboard) != 2 || len(rm.ReplyKeyboard[0]) != 2 {
		t.Fatalf("layout = %+v", rm.ReplyKeyboard)
	}
	if rm.ReplyKeyboard[1][0].Text != "Проверить сейчас" {
		t.Fatalf("button = %q", rm.ReplyKeyboard[1][0].Text)
	}
}
