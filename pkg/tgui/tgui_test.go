package tgui

import "testing"

func TestTruncRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		tail string
		want string
	}{
		{"привет", 3, "", "при"},
		{"привет", 6, "…", "привет"},
		{"привет", 10, "…", "привет"},
		{"abcdef", 2, "…", "ab…"},
		{"abc", 0, "…", ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n, tc.tail); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestLinkEscapesAttribute(t *testing.T) {
	got := Link(`a<b`, `https://x/?a=1&b="2"`).String()
	want := `<a href="https://x/?a=1&amp;b=&#34;2&#34;">a&lt;b</a>`
	if got != want {
		t.Fatalf("Link = %s, want %s", got, want)
	}
}

func TestBuilder(t *testing.T) {
	b := New().Title("📊", "Статус").KV("Группы", "3").Blank().Line("<x>")
	want := "📊 <b>Статус</b>\n• <b>Группы</b>: 3\n\n&lt;x&gt;"
	if got := b.Text(); got != want {
		t.Fatalf("Text = %q, want %q", got, want)
	}
	opt := b.Keyboard([][]string{{"a"}}).Options()
	if opt.ParseMode != "HTML" || !opt.DisablePreview || len(opt.Keyboard) != 1 {
		t.Fatalf("unexpected options: %+v", opt)
	}
}

func TestLabeled(t *testing.T) {
	got := Labeled("🌍", "Город", "A&B").String()
	if got != "🌍 <b>Город:</b> A&amp;B" {
		t.Fatalf("Labeled = %q", got)
	}
}
