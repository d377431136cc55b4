package match

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFirst(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     string
		ok       bool
	}{
		{name: "inflected form is not a match", text: "Купил у них кота", keywords: []string{"кот"}},
		{name: "whole word", text: "Ищу кот", keywords: []string{"кот"}, want: "кот", ok: true},
		{name: "case insensitive cyrillic", text: "ПРОДАМ КОТА", keywords: []string{"кота"}, want: "кота", ok: true},
		{name: "case insensitive latin", text: "Need a Plumber now", keywords: []string{"plumber"}, want: "plumber", ok: true},
		{name: "punctuation bounds", text: "кот, срочно!", keywords: []string{"кот"}, want: "кот", ok: true},
		{name: "underscore is a word rune", text: "кот_бот", keywords: []string{"кот"}},
		{name: "digits are word runes", text: "кот2", keywords: []string{"кот"}},
		{name: "first keyword in list order wins", text: "ищу кот и пса", keywords: []string{"пса", "кот"}, want: "пса", ok: true},
		{name: "later occurrence still matches", text: "котлета и кот", keywords: []string{"кот"}, want: "кот", ok: true},
		{name: "multi word keyword", text: "куплю стиральную машину", keywords: []string{"стиральную машину"}, want: "стиральную машину", ok: true},
		{name: "blank keywords ignored", text: "anything", keywords: []string{"", "  "}},
		{name: "empty text", text: "", keywords: []string{"кот"}},
		{name: "no keywords", text: "кот", keywords: nil},
		{name: "ё folds with case only", text: "Ёлка", keywords: []string{"ёлка"}, want: "ёлка", ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := First(tt.text, tt.keywords)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("First(%q, %q) = (%q, %v), want (%q, %v)", tt.text, tt.keywords, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMatcherReturnsOriginalSpelling(t *testing.T) {
	t.Parallel()
	m := New([]string{" Кот "})
	got, ok := m.First("ищу кот")
	if !ok || got != " Кот " {
		t.Fatalf("First = (%q, %v), want (%q, true)", got, ok, " Кот ")
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	got := SplitList(" кот,  собака  , ,КОТ, стиральная   машина")
	want := []string{"кот", "собака", "стиральная машина"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SplitList mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyAgreesWithMatching(t *testing.T) {
	t.Parallel()
	if Key("Straße") != Key(" STRASSE ") {
		t.Fatalf("Key differs for spellings that match the same text")
	}
	if _, ok := First("Heute auf der STRASSE", []string{"Straße"}); !ok {
		t.Fatalf("folded keyword did not match")
	}
	if Key("кот") == Key("кота") {
		t.Fatalf("distinct words share a key")
	}
}
