package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkwatch/internal/export"
	"vkwatch/internal/fetcher"
	"vkwatch/internal/monitor"
	"vkwatch/internal/storage"
	"vkwatch/internal/transport"
	"vkwatch/internal/vk"
	"vkwatch/pkg/logx"
)

type sent struct {
	chatID  int64
	text    string
	doc     *transport.Document
	options *transport.SendOptions
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	got  chan struct{}
}

func newFakeSender() *fakeSender { return &fakeSender{got: make(chan struct{}, 64)} }

func (f *fakeSender) record(s sent) {
	f.mu.Lock()
	f.msgs = append(f.msgs, s)
	f.mu.Unlock()
	select {
	case f.got <- struct{}{}:
	default:
	}
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.record(sent{chatID: to.ChatID, text: text, options: opt})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, to transport.ChatTarget, _ transport.Photo, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.record(sent{chatID: to.ChatID, text: caption, options: opt})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) SendDocument(_ context.Context, to transport.ChatTarget, doc transport.Document, caption string) (transport.MessageRef, error) {
	d := doc
	f.record(sent{chatID: to.ChatID, text: caption, doc: &d})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

// take returns and clears everything sent so far.
func (f *fakeSender) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.msgs
	f.msgs = nil
	return out
}

func texts(ss []sent) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.text
	}
	return out
}

type fakeResolver struct {
	pages map[string]fetcher.Page
	err   error
	calls []string
}

func (r *fakeResolver) ResolvePage(_ context.Context, handle string) (fetcher.Page, error) {
	r.calls = append(r.calls, handle)
	if r.err != nil {
		return fetcher.Page{}, r.err
	}
	p, ok := r.pages[handle]
	if !ok {
		return fetcher.Page{}, &vk.Error{Code: vk.CodeNotFound, Message: "not found"}
	}
	return p, nil
}

type fakeChecker struct {
	res         monitor.CycleResult
	calls       int
	hadDeadline bool
}

func (c *fakeChecker) TriggerNow(ctx context.Context) monitor.CycleResult {
	c.calls++
	_, c.hadDeadline = ctx.Deadline()
	return c.res
}

func (c *fakeChecker) Next() time.Time { return time.Time{} }

type fakeStats struct{ st monitor.Stats }

func (f fakeStats) Stats() monitor.Stats { return f.st }

type harness struct {
	bot      *Bot
	store    storage.Store
	sender   *fakeSender
	resolver *fakeResolver
	checker  *fakeChecker
}

func newHarness(t *testing.T, owners ...int64) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		store:  st,
		sender: newFakeSender(),
		resolver: &fakeResolver{pages: map[string]fetcher.Page{
			"test_group": {Domain: "test_group", GroupID: 42},
		}},
		checker: &fakeChecker{},
	}
	h.bot = New(Config{Owners: owners, Location: time.UTC}, Deps{
		Store:    st,
		Resolver: h.resolver,
		Checker:  h.checker,
		Stats:    fakeStats{st: monitor.Stats{StartedAt: time.Now()}},
		Exporter: export.New(st, time.UTC),
		Sender:   h.sender,
	}, logx.Nop())
	return h
}

func private(from int64, text string) *transport.Message {
	return &transport.Message{ChatID: from, ChatType: "private", FromID: from, FromName: "Оля", Text: text}
}

func group(from int64, text string) *transport.Message {
	return &transport.Message{ChatID: -100500, ChatType: "supergroup", ChatTitle: "Модераторы", FromID: from, Text: text}
}

func (h *harness) say(t *testing.T, msg *transport.Message) []string {
	t.Helper()
	h.bot.handle(context.Background(), msg)
	return texts(h.sender.take())
}

func TestAddGroupViaButtonPrompt(t *testing.T) {
	h := newHarness(t)

	got := h.say(t, private(1, "Добавить группу"))
	require.Equal(t, []string{textAskGroup}, got)

	got = h.say(t, private(1, "https://vk.com/Test_Group?w=wall"))
	require.Equal(t, []string{"✅ Группа test_group (ID: 42) добавлена!"}, got)
	require.Equal(t, []string{"test_group"}, h.resolver.calls)

	pages, err := h.store.ListPages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, int64(42), pages[0].GroupID)

	got = h.say(t, private(1, "/addgroup @test_group"))
	assert.Equal(t, []string{textGroupExists}, got)

	// The prompt was consumed; free text now falls back.
	got = h.say(t, private(1, "test_group"))
	assert.Equal(t, []string{textUseButtons}, got)
}

func TestAddGroupLookupErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", &vk.Error{Code: vk.CodeNotFound}, textGroupNotFound},
		{"access denied", &vk.Error{Code: vk.CodeAccessDenied}, textGroupNoAccess},
		{"other api error", &vk.Error{Code: vk.CodeAuthFailed, Message: "invalid token"}, "❌ Ошибка VK API: invalid token"},
		{"network", errors.New("dial tcp: refused"), textGroupAddFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.resolver.err = tt.err
			got := h.say(t, private(1, "/addgroup somegroup"))
			assert.Equal(t, []string{tt.want}, got)
		})
	}

	h := newHarness(t)
	assert.Equal(t, []string{textBadHandle}, h.say(t, private(1, "/addgroup https://example.com/x")))
	assert.Empty(t, h.resolver.calls)
}

func TestKeywordFlow(t *testing.T) {
	h := newHarness(t)

	got := h.say(t, private(1, "/addkw продам, Куплю, продам , "))
	assert.Equal(t, []string{"✅ Добавлено 2 ключевых слов!", "⚠️ 1 слов уже были в списке!"}, got)

	got = h.say(t, private(1, "Список ключевых слов"))
	assert.Equal(t, []string{"Ключевые слова:\nпродам\nКуплю"}, got)

	got = h.say(t, private(1, "Удалить ключевое слово"))
	assert.Equal(t, []string{"Выберите ключевое слово для удаления:\n1. продам\n2. Куплю"}, got)
	got = h.say(t, private(1, "7"))
	assert.Equal(t, []string{textBadKeywordNumber}, got)

	h.say(t, private(1, "Удалить ключевое слово"))
	got = h.say(t, private(1, "2"))
	assert.Equal(t, []string{"❌ Ключевое слово 'Куплю' удалено!"}, got)

	got = h.say(t, private(1, "/delkw ПРОДАМ"))
	assert.Equal(t, []string{"❌ Ключевое слово 'продам' удалено!"}, got)

	got = h.say(t, private(1, "Удалить все ключевые слова"))
	assert.Equal(t, []string{textKeywordsNone}, got)

	h.say(t, private(1, "/addkw a, b"))
	got = h.say(t, private(1, "Удалить все ключевые слова"))
	assert.Equal(t, []string{textKeywordsCleared}, got)
	got = h.say(t, private(1, "/keywords"))
	assert.Equal(t, []string{"Ключевые слова:\n" + textKeywordsEmpty}, got)
}

func TestDeleteGroupByNumberAndName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.AddPage(ctx, storage.Page{Domain: "alpha", GroupID: 1})
	require.NoError(t, err)
	_, err = h.store.AddPage(ctx, storage.Page{Domain: "beta", GroupID: 2})
	require.NoError(t, err)

	got := h.say(t, private(1, "Удалить группу"))
	assert.Equal(t, []string{"Выберите группу для удаления:\n1. alpha\n2. beta"}, got)
	got = h.say(t, private(1, "нет"))
	assert.Equal(t, []string{textAskGroupNumber}, got)

	got = h.say(t, private(1, "/delgroup https://vk.com/Beta"))
	assert.Equal(t, []string{"❌ Группа beta удалена!"}, got)
	got = h.say(t, private(1, "/delgroup 1"))
	assert.Equal(t, []string{"❌ Группа alpha удалена!"}, got)
	got = h.say(t, private(1, "Список групп"))
	assert.Equal(t, []string{textGroupsEmpty}, got)
}

func TestOwnerGating(t *testing.T) {
	h := newHarness(t, 1)

	got := h.say(t, private(2, "/addkw секрет"))
	assert.Equal(t, []string{textForbidden}, got)
	kws, err := h.store.ListKeywords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, kws)

	// A forbidden button must not leave a prompt behind.
	h.say(t, private(2, "Добавить ключевое слово"))
	got = h.say(t, private(2, "секрет"))
	assert.Equal(t, []string{textUseButtons}, got)

	got = h.say(t, private(2, "/keywords"))
	assert.Equal(t, []string{"Ключевые слова:\n" + textKeywordsEmpty}, got)

	got = h.say(t, private(1, "/addkw секрет"))
	assert.Equal(t, []string{"✅ Добавлено 1 ключевых слов!"}, got)

	h.bot.SetOwners(nil)
	got = h.say(t, private(2, "/addkw ещё"))
	assert.Equal(t, []string{"✅ Добавлено 1 ключевых слов!"}, got)
}

func TestStartInGroupSubscribesChat(t *testing.T) {
	h := newHarness(t)
	h.bot.handle(context.Background(), group(1, "/start@vkwatch_bot"))
	out := h.sender.take()
	require.Len(t, out, 1)
	assert.Contains(t, out[0].text, "👋 Приветствую участников группы Модераторы!")
	assert.Contains(t, out[0].text, "Теперь эта группа будет получать уведомления")
	assert.Equal(t, adminKeyboard, out[0].options.Keyboard)
	assert.Equal(t, "HTML", out[0].options.ParseMode)

	ok, err := h.store.HasChat(context.Background(), -100500)
	require.NoError(t, err)
	assert.True(t, ok)

	got := h.say(t, group(1, "Добавить чат"))
	assert.Equal(t, []string{textChatExists}, got)
}

func TestStartInGroupByStrangerDoesNotSubscribe(t *testing.T) {
	h := newHarness(t, 1)
	h.bot.handle(context.Background(), group(7, "/start"))
	out := h.sender.take()
	require.Len(t, out, 1)
	assert.Contains(t, out[0].text, "владелец бота должен нажать")

	ok, err := h.store.HasChat(context.Background(), -100500)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChatSubscription(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{textChatsEmpty}, h.say(t, private(5, "Список чатов")))
	assert.Equal(t, []string{textChatAdded}, h.say(t, private(5, "Добавить чат")))
	assert.Equal(t, []string{"📋 Чаты для уведомлений:\n1. 👤 Личный чат (ID: 5) (ID: 5)"}, h.say(t, private(5, "Список чатов")))
	assert.Equal(t, []string{textChatRemoved}, h.say(t, private(5, "удалить чат")))
	assert.Equal(t, []string{textChatNotPresent}, h.say(t, private(5, "/delchat")))
}

func TestCheckReplies(t *testing.T) {
	h := newHarness(t)

	got := h.say(t, private(1, "Проверить сейчас"))
	want := "✅ Проверка завершена! Новых комментариев с ключевыми словами не найдено.\n" +
		"📈 Всего найдено: 0\n📁 Постов в Excel: 0\n📁 Комментариев в Excel: 0"
	assert.Equal(t, []string{"🔄 Запускаю проверку...", want}, got)

	h.checker.res = monitor.CycleResult{MatchesFound: 3}
	got = h.say(t, private(1, "/check"))
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[1], "✅ Проверка завершена! Найдено 3 новых комментариев"), got[1])

	h.checker.res = monitor.CycleResult{Busy: true}
	got = h.say(t, private(1, "/check"))
	assert.Equal(t, "⏳ Проверка уже выполняется, дождитесь её завершения.", got[1])
	assert.Equal(t, 3, h.checker.calls)
	assert.False(t, h.checker.hadDeadline, "a manual cycle runs until shutdown, not under a command deadline")
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	got := h.say(t, private(1, "Экспорт в Excel"))
	assert.Equal(t, []string{"📭 Файл с постами пуст или не существует", "📭 Файл с комментариями пуст или не существует"}, got)

	ctx := context.Background()
	_, err := h.store.RecordMatchIfNew(ctx, storage.MatchedComment{
		Permalink: "https://vk.com/wall-1_2?reply=3", Domain: "alpha", GroupID: 1, PostID: 2, CommentID: 3,
		AuthorID: 9, AuthorName: "Иван", Text: "продам", Keyword: "продам", DetectedAt: time.Now(),
	})
	require.NoError(t, err)

	h.bot.handle(ctx, private(1, "/export"))
	out := h.sender.take()
	require.Len(t, out, 2)
	assert.Equal(t, "📭 Файл с постами пуст или не существует", out[0].text)
	require.NotNil(t, out[1].doc)
	assert.Equal(t, export.CommentsFileName, out[1].doc.FileName)
	assert.Equal(t, xlsxMIME, out[1].doc.MIME)
	assert.NotEmpty(t, out[1].doc.Data)
	assert.Equal(t, "📊 Файл с найденными комментариями\nКоличество записей: 1", out[1].text)
}

func TestStatusMentionsCurrentChat(t *testing.T) {
	h := newHarness(t)
	h.say(t, private(3, "/addchat"))
	h.bot.handle(context.Background(), private(3, "статус"))
	out := h.sender.take()
	require.Len(t, out, 1)
	assert.Contains(t, out[0].text, "📊 <b>Текущий статус:</b>")
	assert.Contains(t, out[0].text, "🟢 ОНЛАЙН")
	assert.Contains(t, out[0].text, "Текущий чат: ✅ добавлен")
	assert.Contains(t, out[0].text, "- Личный чат (private, ID: 3)")
}

func TestPendingPromptExpires(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.bot.now = func() time.Time { return now }

	h.say(t, private(1, "Добавить ключевое слово"))
	now = now.Add(10 * time.Minute)
	got := h.say(t, private(1, "поздно"))
	assert.Equal(t, []string{textUseButtons}, got)
}

func TestGroupChatterIgnored(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.say(t, group(1, "привет всем")))
	assert.Empty(t, h.say(t, group(1, "/otherbot_cmd")))
	assert.Equal(t, []string{textUnknownCommand}, h.say(t, private(1, "/nope")))
}

func TestSplitCommand(t *testing.T) {
	tests := []struct{ in, word, rest string }{
		{"/start", "start", ""},
		{"/AddKW@vkwatch_bot  a, b", "addkw", "a, b"},
		{"/addkw\nраз, два", "addkw", "раз, два"},
	}
	for _, tt := range tests {
		w, r := splitCommand(tt.in)
		if w != tt.word || r != tt.rest {
			t.Fatalf("splitCommand(%q) = %q, %q; want %q, %q", tt.in, w, r, tt.word, tt.rest)
		}
	}
}

func TestRunDispatchesUpdates(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, updates) }()

	updates <- transport.Update{Message: private(1, "/keyboard")}
	select {
	case <-h.sender.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply from dispatcher")
	}
	assert.Equal(t, []string{"Клавиатура активирована"}, texts(h.sender.take()))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMenuCommands(t *testing.T) {
	h := newHarness(t)
	menu := h.bot.MenuCommands()
	byName := map[string]string{}
	for _, c := range menu {
		byName[c.Command] = c.Description
	}
	assert.Contains(t, byName, "status")
	assert.Equal(t, "🔒 добавить группу", byName["addgroup"])
	assert.NotContains(t, byName, "kw", "aliases stay out of the menu")
}
