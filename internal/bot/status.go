package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"vkwatch/internal/export"
	"vkwatch/internal/monitor"
	"vkwatch/internal/storage"
	"vkwatch/internal/transport"
	"vkwatch/pkg/logx"
	"vkwatch/pkg/tgui"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%dч %dм %dс", h, m, s)
}

func (b *Bot) stats() monitor.Stats {
	if b.deps.Stats == nil {
		return monitor.Stats{}
	}
	return b.deps.Stats.Stats()
}

// statusLines is the summary block shared by /start and /status.
func (b *Bot) statusLines(ctx context.Context) ([]string, storage.Counts, error) {
	counts, err := b.deps.Store.Counts(ctx)
	if err != nil {
		return nil, storage.Counts{}, err
	}
	st := b.stats()
	loc := b.config().Location

	uptime := "неизвестно"
	if !st.StartedAt.IsZero() {
		uptime = formatUptime(b.now().Sub(st.StartedAt))
	}
	total := st.TotalMatches
	if total < counts.TotalMatches {
		total = counts.TotalMatches
	}
	last := "ещё не было"
	if st.LastCycle != nil {
		last = st.LastCycle.StartedAt.In(loc).Format("15:04:05")
	}

	lines := []string{
		"🟢 ОНЛАЙН",
		"⏰ Время работы: " + uptime,
		"📊 Групп ВК: " + strconv.Itoa(counts.Pages),
		"🔍 Ключевых слов: " + strconv.Itoa(counts.Keywords),
		"💬 Чатов для уведомлений: " + strconv.Itoa(counts.Chats),
		"📈 Всего найдено комментариев: " + strconv.FormatInt(total, 10),
		"📁 Постов в Excel: " + strconv.Itoa(counts.CheckedPosts),
		"📁 Комментариев в Excel: " + strconv.Itoa(counts.MatchedComments),
		"🕒 Последняя проверка: " + last,
	}
	if st.Running {
		lines = append(lines, "🔄 Идёт проверка")
	}
	if b.deps.Checker != nil {
		if next := b.deps.Checker.Next(); !next.IsZero() {
			lines = append(lines, "⏭ Следующая проверка: "+next.In(loc).Format("15:04:05"))
		}
	}
	return lines, counts, nil
}

func (b *Bot) handleStart(ctx context.Context, req *Request) error {
	lines, _, err := b.statusLines(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	msg := req.Msg
	kb := keyboardFor(msg)
	ui := tgui.New().Keyboard(kb)

	if msg.IsGroup() {
		registered := false
		if b.isOwner(req.FromID) {
			added, err := b.deps.Store.AddChat(ctx, chatFromMessage(msg, b.now))
			if err != nil {
				return b.fail(ctx, req, err)
			}
			if added {
				req.Target = strconv.FormatInt(msg.ChatID, 10)
				req.Logger.Info("group chat subscribed on start", logx.String("title", msg.ChatTitle))
			}
			registered = true
		}
		ui.Line(fmt.Sprintf("👋 Приветствую участников группы %s!", msg.ChatTitle)).Blank()
		if registered {
			ui.Line("Я бот для мониторинга комментариев ВКонтакте. Теперь эта группа будет получать уведомления о найденных комментариях.")
		} else {
			ui.Line("Я бот для мониторинга комментариев ВКонтакте. Чтобы получать уведомления, владелец бота должен нажать «Добавить чат».")
		}
		ui.Blank()
		for _, l := range lines {
			ui.Line(l)
		}
		ui.Blank().Line("Для управления настройками используйте кнопки ниже:")
		b.replyOpts(ctx, req, ui.Text(), ui.Options())
		return nil
	}

	name := msg.FromName
	if name == "" {
		name = "друг"
	}
	ui.HTML(tgui.JoinH("", tgui.Raw("Привет, "), tgui.Link(name, "tg://user?id="+strconv.FormatInt(req.FromID, 10)), tgui.Raw("!"))).
		Blank().
		Line("Я бот для мониторинга комментариев ВКонтакте.").
		Line(fmt.Sprintf("Я проверяю последние %d постов в указанных группах на наличие ключевых слов.", b.config().PostsLimit)).
		Blank()
	for _, l := range lines {
		ui.Line(l)
	}
	ui.Blank().Line("Используй кнопки ниже для управления мной:")
	b.replyOpts(ctx, req, ui.Text(), ui.Options())
	return nil
}

func (b *Bot) handleKeyboard(ctx context.Context, req *Request) error {
	b.reply(ctx, req, "Клавиатура активирована")
	return nil
}

func (b *Bot) handleStatus(ctx context.Context, req *Request) error {
	lines, counts, err := b.statusLines(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	chats, err := b.deps.Store.ListChats(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	current := "❌ не добавлен"
	for _, c := range chats {
		if c.ChatID == req.Chat.ChatID {
			current = "✅ добавлен"
			break
		}
	}

	ui := tgui.New().Keyboard(keyboardFor(req.Msg)).
		Title("📊", "Текущий статус:").
		Blank()
	for _, l := range lines {
		ui.Line(l)
	}
	ui.Blank().
		HTML(tgui.B("Детальная информация:")).
		Line("Группы ВК: " + strconv.Itoa(counts.Pages)).
		Line("Ключевые слова: " + strconv.Itoa(counts.Keywords)).
		Line("Чаты для уведомлений: " + strconv.Itoa(len(chats))).
		Line("Текущий чат: " + current).
		Blank()
	if len(chats) == 0 {
		ui.Line("Нет добавленных чатов.")
	}
	for _, c := range chats {
		title := c.Title
		if title == "" {
			title = "Личный чат"
		}
		ui.Line(fmt.Sprintf("- %s (%s, ID: %d)", title, c.Type, c.ChatID))
	}
	b.replyOpts(ctx, req, ui.Text(), ui.Options())
	return nil
}

func (b *Bot) handleCheck(ctx context.Context, req *Request) error {
	if b.deps.Checker == nil {
		b.reply(ctx, req, "⚠️ Проверка недоступна.")
		return nil
	}
	b.reply(ctx, req, "🔄 Запускаю проверку...")
	req.Target = "cycle"
	res := b.deps.Checker.TriggerNow(ctx)

	switch {
	case res.Busy:
		b.reply(ctx, req, "⏳ Проверка уже выполняется, дождитесь её завершения.")
		return nil
	case res.Err != nil:
		b.reply(ctx, req, "❌ Ошибка проверки: "+res.Err.Error())
		return res.Err
	case res.Skipped == monitor.SkipNoPages:
		b.reply(ctx, req, "⚠️ Нет групп для проверки. Добавьте группу.")
		return nil
	case res.Skipped == monitor.SkipNoKeywords:
		b.reply(ctx, req, "⚠️ Нет ключевых слов для поиска. Добавьте ключевые слова.")
		return nil
	case res.Skipped == monitor.SkipNoSource:
		b.reply(ctx, req, "⚠️ VK API недоступен, проверка пропущена.")
		return nil
	}

	counts, err := b.deps.Store.Counts(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	total := b.stats().TotalMatches
	if total < counts.TotalMatches {
		total = counts.TotalMatches
	}
	head := "✅ Проверка завершена! Новых комментариев с ключевыми словами не найдено."
	if res.MatchesFound > 0 {
		head = fmt.Sprintf("✅ Проверка завершена! Найдено %d новых комментариев с ключевыми словами.", res.MatchesFound)
	}
	b.reply(ctx, req, fmt.Sprintf("%s\n📈 Всего найдено: %d\n📁 Постов в Excel: %d\n📁 Комментариев в Excel: %d",
		head, total, counts.CheckedPosts, counts.MatchedComments))
	return nil
}

func (b *Bot) handleExport(ctx context.Context, req *Request) error {
	if b.deps.Exporter == nil {
		b.reply(ctx, req, "⚠️ Экспорт недоступен.")
		return nil
	}
	posts, err := b.deps.Exporter.Posts(ctx)
	if err != nil {
		b.reply(ctx, req, "❌ Ошибка при экспорте в Excel: "+err.Error())
		return err
	}
	if err := b.sendWorkbook(ctx, req, posts, "📊 Файл с проверенными постами", "📭 Файл с постами пуст или не существует"); err != nil {
		return err
	}
	comments, err := b.deps.Exporter.Comments(ctx)
	if err != nil {
		b.reply(ctx, req, "❌ Ошибка при экспорте в Excel: "+err.Error())
		return err
	}
	return b.sendWorkbook(ctx, req, comments, "📊 Файл с найденными комментариями", "📭 Файл с комментариями пуст или не существует")
}

func (b *Bot) sendWorkbook(ctx context.Context, req *Request, f export.File, title, empty string) error {
	if f.Rows == 0 || len(f.Data) == 0 {
		b.reply(ctx, req, empty)
		return nil
	}
	caption := fmt.Sprintf("%s\nКоличество записей: %d", title, f.Rows)
	doc := transport.Document{Data: f.Data, FileName: f.Name, MIME: xlsxMIME}
	if _, err := b.deps.Sender.SendDocument(ctx, req.Chat, doc, caption); err != nil {
		b.reply(ctx, req, "❌ Ошибка при экспорте в Excel: "+err.Error())
		return err
	}
	return nil
}
