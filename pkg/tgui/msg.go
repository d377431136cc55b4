package tgui

import (
	"strings"

	"vkwatch/internal/transport"
)

// Builder assembles an HTML message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	disablePreview bool
	keyboard       [][]string
	lines          []string
}

func New() *Builder {
	return &Builder{disablePreview: true}
}

func (b *Builder) DisablePreview(v bool) *Builder {
	b.disablePreview = v
	return b
}

// Keyboard attaches a persistent reply keyboard.
func (b *Builder) Keyboard(rows [][]string) *Builder {
	b.keyboard = rows
	return b
}

// Title adds a bold title line with an optional emoji.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e := strings.TrimSpace(emoji); e != "" {
		b.lines = append(b.lines, Esc(e).String()+" "+B(t).String())
		return b
	}
	b.lines = append(b.lines, B(t).String())
	return b
}

// Line adds one escaped line.
func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HTML adds a pre-rendered line.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// KV adds a "• <b>key</b>: value" row.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

// Text returns the joined message body.
func (b *Builder) Text() string {
	return strings.Trim(strings.Join(b.lines, "\n"), "\n")
}

// Options returns send options matching the builder's settings.
func (b *Builder) Options() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: "HTML", DisablePreview: b.disablePreview, Keyboard: b.keyboard}
}
