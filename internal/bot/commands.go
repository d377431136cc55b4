package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vkwatch/internal/storage"
	"vkwatch/internal/transport"
	"vkwatch/internal/vk"
	"vkwatch/pkg/logx"
)

const (
	textUseButtons     = "Используйте кнопки для управления ботом"
	textUnknownCommand = "Неизвестная команда. Список команд: /help"
	textForbidden      = "⛔ Эта команда доступна только владельцу бота."
	textBusy           = "⏳ Бот занят, попробуйте чуть позже."
	textInternalError  = "❌ Произошла ошибка, попробуйте позже."

	textAskGroup       = "Введите ссылку на группу ВКонтакте (например: https://vk.com/relaxmore1) или короткое имя:"
	textBadHandle      = "❌ Не удалось извлечь идентификатор группы. Пожалуйста, введите корректную ссылку или имя группы."
	textGroupExists    = "⚠️ Эта группа уже в списке!"
	textGroupNotFound  = "❌ Группа не найдена. Проверьте правильность ссылки."
	textGroupNoAccess  = "❌ Нет доступа к группе. Возможно, она приватная или удалена."
	textGroupAddFailed = "❌ Ошибка добавления группы. Проверьте правильность ссылки."
	textGroupsEmpty    = "Список групп пуст."
	textAskGroupNumber = "⚠️ Пожалуйста, введите номер группы!"
	textBadGroupNumber = "⚠️ Неверный номер группы!"

	textAskKeywords      = "Введите ключевые слова через запятую:"
	textKeywordsEmpty    = "Список ключевых слов пуст."
	textKeywordsCleared  = "✅ Все ключевые слова удалены!"
	textKeywordsNone     = "❌ Список ключевых слов и так пуст."
	textAskKeywordNumber = "⚠️ Пожалуйста, введите номер слова!"
	textBadKeywordNumber = "⚠️ Неверный номер слова!"

	textChatExists     = "✅ Этот чат уже добавлен для получения уведомлений!"
	textChatAdded      = "✅ Чат успешно добавлен для получения уведомлений!"
	textChatRemoved    = "✅ Чат удален из списка для уведомлений!"
	textChatNotPresent = "❌ Этот чат не был добавлен для уведомлений."
	textChatsEmpty     = "📭 Список чатов для уведомлений пуст."
)

func (b *Bot) registry() []Command {
	return []Command{
		{Route: "start", Description: "приветствие и подписка группы", Audit: true, Handle: b.handleStart},
		{Route: "keyboard", Description: "показать клавиатуру", Handle: b.handleKeyboard},
		{Route: "status", Buttons: []string{btnStatus}, Description: "статус мониторинга", Handle: b.handleStatus},
		{Route: "check", Buttons: []string{btnCheck}, Description: "проверить сейчас", Access: AccessOwnerOnly, Audit: true, Unbounded: true, Handle: b.handleCheck},
		{Route: "export", Buttons: []string{btnExport}, Description: "выгрузить Excel", Access: AccessOwnerOnly, Handle: b.handleExport},
		{Route: "groups", Buttons: []string{btnGroups}, Description: "список групп", Handle: b.handleGroups},
		{Route: "addgroup", Buttons: []string{btnAddGroup}, Description: "добавить группу", Access: AccessOwnerOnly, Audit: true, Handle: b.handleAddGroup},
		{Route: "delgroup", Buttons: []string{btnDelGroup}, Description: "удалить группу", Access: AccessOwnerOnly, Audit: true, Handle: b.handleDelGroup},
		{Route: "keywords", Aliases: []string{"kw"}, Buttons: []string{btnKeywords}, Description: "список ключевых слов", Handle: b.handleKeywords},
		{Route: "addkw", Buttons: []string{btnAddKeyword}, Description: "добавить ключевые слова", Access: AccessOwnerOnly, Audit: true, Handle: b.handleAddKeywords},
		{Route: "delkw", Buttons: []string{btnDelKeyword}, Description: "удалить ключевое слово", Access: AccessOwnerOnly, Audit: true, Handle: b.handleDelKeyword},
		{Route: "clearkw", Buttons: []string{btnClearKw}, Description: "удалить все ключевые слова", Access: AccessOwnerOnly, Audit: true, Handle: b.handleClearKeywords},
		{Route: "chats", Buttons: []string{btnChats}, Description: "список чатов", Handle: b.handleChats},
		{Route: "addchat", Buttons: []string{btnAddChat}, Description: "подписать этот чат", Access: AccessOwnerOnly, Audit: true, Handle: b.handleAddChat},
		{Route: "delchat", Buttons: []string{btnDelChat}, Description: "отписать этот чат", Access: AccessOwnerOnly, Audit: true, Handle: b.handleDelChat},
		{Route: "help", Aliases: []string{"h"}, Description: "список команд", Handle: b.handleHelp},
	}
}

func (b *Bot) reply(ctx context.Context, req *Request, text string) {
	opt := &transport.SendOptions{Keyboard: keyboardFor(req.Msg)}
	if _, err := b.deps.Sender.SendText(ctx, req.Chat, text, opt); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

func (b *Bot) replyOpts(ctx context.Context, req *Request, text string, opt *transport.SendOptions) {
	if _, err := b.deps.Sender.SendText(ctx, req.Chat, text, opt); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

// fail tells the operator something broke and hands err to the middleware.
func (b *Bot) fail(ctx context.Context, req *Request, err error) error {
	b.reply(ctx, req, textInternalError)
	return err
}

func (b *Bot) prompt(ctx context.Context, req *Request, text string) {
	b.pending.set(req.key(), req.Command, b.now())
	b.reply(ctx, req, text)
}

// pick resolves "3" or a literal name against items. ok=false with
// isNumber=true means the number was out of range.
func pick(input string, items []string, norm func(string) string) (idx int, isNumber, ok bool) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(items) {
			return n - 1, true, true
		}
		return -1, true, false
	}
	want := norm(input)
	for i, it := range items {
		if norm(it) == want {
			return i, false, true
		}
	}
	return -1, false, false
}

func numbered(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, it)
	}
	return sb.String()
}

// ---- groups ----

func (b *Bot) handleGroups(ctx context.Context, req *Request) error {
	pages, err := b.deps.Store.ListPages(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if len(pages) == 0 {
		b.reply(ctx, req, textGroupsEmpty)
		return nil
	}
	lines := make([]string, len(pages))
	for i, p := range pages {
		lines[i] = fmt.Sprintf("%s (ID: %d)", p.Domain, p.GroupID)
	}
	b.reply(ctx, req, "Отслеживаемые группы:\n"+numbered(lines))
	return nil
}

func (b *Bot) handleAddGroup(ctx context.Context, req *Request) error {
	if req.ArgText == "" {
		b.prompt(ctx, req, textAskGroup)
		return nil
	}
	handle, err := vk.ParseHandle(req.ArgText)
	if err != nil {
		b.reply(ctx, req, textBadHandle)
		return nil
	}
	pages, err := b.deps.Store.ListPages(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	for _, p := range pages {
		if p.Domain == handle {
			b.reply(ctx, req, textGroupExists)
			return nil
		}
	}
	if b.deps.Resolver == nil {
		return b.fail(ctx, req, errors.New("no page resolver"))
	}

	page, err := b.deps.Resolver.ResolvePage(ctx, handle)
	if err != nil {
		var ae *vk.Error
		switch {
		case vk.Code(err) == vk.CodeNotFound:
			b.reply(ctx, req, textGroupNotFound)
		case vk.Code(err) == vk.CodeAccessDenied:
			b.reply(ctx, req, textGroupNoAccess)
		case errors.As(err, &ae):
			b.reply(ctx, req, "❌ Ошибка VK API: "+ae.Message)
		default:
			b.reply(ctx, req, textGroupAddFailed)
		}
		req.Logger.Info("group lookup failed", logx.String("handle", handle), logx.Err(err))
		return nil
	}

	for _, p := range pages {
		if p.GroupID == page.GroupID {
			b.reply(ctx, req, textGroupExists)
			return nil
		}
	}
	added, err := b.deps.Store.AddPage(ctx, storage.Page{Domain: handle, GroupID: page.GroupID, CreatedAt: b.now()})
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if !added {
		b.reply(ctx, req, textGroupExists)
		return nil
	}
	req.Target = handle
	req.Logger.Info("group added", logx.String("domain", handle), logx.Int64("group_id", page.GroupID))
	b.reply(ctx, req, fmt.Sprintf("✅ Группа %s (ID: %d) добавлена!", handle, page.GroupID))
	return nil
}

func (b *Bot) handleDelGroup(ctx context.Context, req *Request) error {
	pages, err := b.deps.Store.ListPages(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	domains := make([]string, len(pages))
	for i, p := range pages {
		domains[i] = p.Domain
	}
	if req.ArgText == "" {
		if len(domains) == 0 {
			b.reply(ctx, req, textGroupsEmpty)
			return nil
		}
		b.prompt(ctx, req, "Выберите группу для удаления:\n"+numbered(domains))
		return nil
	}

	idx, isNumber, ok := pick(req.ArgText, domains, normHandle)
	if !ok {
		if isNumber {
			b.reply(ctx, req, textBadGroupNumber)
		} else {
			b.reply(ctx, req, textAskGroupNumber)
		}
		return nil
	}
	removed := domains[idx]
	if _, err := b.deps.Store.DeletePage(ctx, removed); err != nil {
		return b.fail(ctx, req, err)
	}
	req.Target = removed
	req.Logger.Info("group removed", logx.String("domain", removed))
	b.reply(ctx, req, fmt.Sprintf("❌ Группа %s удалена!", removed))
	return nil
}

// normHandle lets "https://vk.com/Name" match a stored "name".
func normHandle(s string) string {
	if h, err := vk.ParseHandle(s); err == nil {
		return h
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ---- keywords ----

func (b *Bot) handleKeywords(ctx context.Context, req *Request) error {
	kws, err := b.deps.Store.ListKeywords(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	body := textKeywordsEmpty
	if len(kws) > 0 {
		body = strings.Join(kws, "\n")
	}
	b.reply(ctx, req, "Ключевые слова:\n"+body)
	return nil
}

func (b *Bot) handleAddKeywords(ctx context.Context, req *Request) error {
	if req.ArgText == "" {
		b.prompt(ctx, req, textAskKeywords)
		return nil
	}
	var added, existing int
	var names []string
	for _, part := range strings.Split(req.ArgText, ",") {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		ok, err := b.deps.Store.AddKeyword(ctx, kw)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		if ok {
			added++
			names = append(names, kw)
		} else {
			existing++
		}
	}
	if added == 0 && existing == 0 {
		b.reply(ctx, req, textAskKeywords)
		return nil
	}
	if added > 0 {
		req.Target = strings.Join(names, ", ")
		req.Logger.Info("keywords added", logx.Int("count", added))
		b.reply(ctx, req, fmt.Sprintf("✅ Добавлено %d ключевых слов!", added))
	}
	if existing > 0 {
		b.reply(ctx, req, fmt.Sprintf("⚠️ %d слов уже были в списке!", existing))
	}
	return nil
}

func (b *Bot) handleDelKeyword(ctx context.Context, req *Request) error {
	kws, err := b.deps.Store.ListKeywords(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if req.ArgText == "" {
		if len(kws) == 0 {
			b.reply(ctx, req, textKeywordsEmpty)
			return nil
		}
		b.prompt(ctx, req, "Выберите ключевое слово для удаления:\n"+numbered(kws))
		return nil
	}

	idx, isNumber, ok := pick(req.ArgText, kws, func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	})
	if !ok {
		if isNumber {
			b.reply(ctx, req, textBadKeywordNumber)
		} else {
			b.reply(ctx, req, textAskKeywordNumber)
		}
		return nil
	}
	removed := kws[idx]
	if _, err := b.deps.Store.DeleteKeyword(ctx, removed); err != nil {
		return b.fail(ctx, req, err)
	}
	req.Target = removed
	b.reply(ctx, req, fmt.Sprintf("❌ Ключевое слово '%s' удалено!", removed))
	return nil
}

func (b *Bot) handleClearKeywords(ctx context.Context, req *Request) error {
	n, err := b.deps.Store.DeleteAllKeywords(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if n == 0 {
		b.reply(ctx, req, textKeywordsNone)
		return nil
	}
	req.Target = strconv.Itoa(n) + " keywords"
	req.Logger.Info("all keywords removed", logx.Int("count", n))
	b.reply(ctx, req, textKeywordsCleared)
	return nil
}

// ---- chats ----

func chatFromMessage(msg *transport.Message, at func() time.Time) storage.Chat {
	return storage.Chat{ChatID: msg.ChatID, Type: msg.ChatType, Title: msg.ChatTitle, CreatedAt: at()}
}

func (b *Bot) handleAddChat(ctx context.Context, req *Request) error {
	added, err := b.deps.Store.AddChat(ctx, chatFromMessage(req.Msg, b.now))
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if !added {
		b.reply(ctx, req, textChatExists)
		return nil
	}
	req.Target = strconv.FormatInt(req.Chat.ChatID, 10)
	req.Logger.Info("chat subscribed", logx.String("title", req.Msg.ChatTitle))
	b.reply(ctx, req, textChatAdded)
	return nil
}

func (b *Bot) handleDelChat(ctx context.Context, req *Request) error {
	removed, err := b.deps.Store.DeleteChat(ctx, req.Chat.ChatID)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if !removed {
		b.reply(ctx, req, textChatNotPresent)
		return nil
	}
	req.Target = strconv.FormatInt(req.Chat.ChatID, 10)
	req.Logger.Info("chat unsubscribed", logx.String("title", req.Msg.ChatTitle))
	b.reply(ctx, req, textChatRemoved)
	return nil
}

func chatLabel(c storage.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("Личный чат (ID: %d)", c.ChatID)
}

func isGroupType(t string) bool { return t == "group" || t == "supergroup" }

func (b *Bot) handleChats(ctx context.Context, req *Request) error {
	chats, err := b.deps.Store.ListChats(ctx)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if len(chats) == 0 {
		b.reply(ctx, req, textChatsEmpty)
		return nil
	}
	lines := make([]string, len(chats))
	for i, c := range chats {
		emoji := "👤"
		if isGroupType(c.Type) {
			emoji = "👥"
		}
		lines[i] = fmt.Sprintf("%s %s (ID: %d)", emoji, chatLabel(c), c.ChatID)
	}
	b.reply(ctx, req, "📋 Чаты для уведомлений:\n"+numbered(lines))
	return nil
}
