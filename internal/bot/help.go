package bot

import (
	"context"

	"vkwatch/pkg/tgui"
)

func (b *Bot) helpText() string {
	b.mu.RLock()
	cmds := append([]*Command(nil), b.ordered...)
	b.mu.RUnlock()

	var open, locked []tgui.H
	for _, c := range cmds {
		line := tgui.JoinH(" — ", tgui.Raw("/"+c.Route), tgui.Esc(c.Description))
		if len(c.Buttons) > 0 {
			line = tgui.JoinH(" ", line, tgui.Raw("("), tgui.Code(c.Buttons[0]), tgui.Raw(")"))
		}
		if c.Access == AccessOwnerOnly {
			locked = append(locked, tgui.JoinH(" ", tgui.Raw("🔒"), line))
			continue
		}
		open = append(open, line)
	}

	ui := tgui.New().Title("📚", "Команды").Blank()
	for _, l := range open {
		ui.HTML(l)
	}
	if len(locked) > 0 {
		ui.Blank()
		for _, l := range locked {
			ui.HTML(l)
		}
	}
	ui.Blank().Line("Команды с аргументом можно вызвать без него: бот спросит значение.")
	return ui.Text()
}

func (b *Bot) handleHelp(ctx context.Context, req *Request) error {
	opt := tgui.New().Keyboard(keyboardFor(req.Msg)).Options()
	b.replyOpts(ctx, req, b.helpText(), opt)
	return nil
}
