package bot

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"vkwatch/internal/runtime/supervisor"
	"vkwatch/internal/transport"
	"vkwatch/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is the slash command name without the slash.
	Route   string
	Aliases []string
	// Buttons are reply-keyboard labels that run the command.
	Buttons     []string
	Description string
	Access      Access
	Audit       bool
	Timeout     time.Duration // optional per-command override
	// Unbounded commands get no deadline and stop only with the dispatcher.
	Unbounded bool
	Handle      HandlerFunc
}

type Request struct {
	Msg     *transport.Message
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	// ArgText is everything after the command, or the whole message when
	// answering a prompt. Empty means the command was invoked bare.
	ArgText string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	// Target is set by handlers that changed state; it feeds the audit log.
	Target string
}

func (r *Request) key() pendingKey { return pendingKey{chatID: r.Chat.ChatID, userID: r.FromID} }

// Bot routes operator messages to commands.
type Bot struct {
	deps Deps
	log  logx.Logger
	now  func() time.Time

	mu       sync.RWMutex
	cfg      Config
	commands map[string]*Command
	buttons  map[string]*Command
	ordered  []*Command

	pending *pendingInputs
}

func New(cfg Config, deps Deps, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	cfg.Owners = append([]int64(nil), cfg.Owners...)
	b := &Bot{
		deps:    deps,
		log:     log.With(logx.String("comp", "bot")),
		now:     time.Now,
		cfg:     cfg,
		pending: newPendingInputs(cfg.PendingTTL),
	}
	b.setRegistry(b.registry())
	return b
}

// SetOwners updates the owner list. Safe to call during hot-reload.
func (b *Bot) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	b.mu.Lock()
	b.cfg.Owners = cp
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Bot) isOwner(id int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.cfg.Owners) == 0 {
		return true
	}
	for _, o := range b.cfg.Owners {
		if o == id {
			return true
		}
	}
	return false
}

func (b *Bot) setRegistry(cmds []Command) {
	byName := map[string]*Command{}
	byButton := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		if c.Route == "" || c.Handle == nil {
			continue
		}
		ordered = append(ordered, c)
		byName[c.Route] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				byName[a] = c
			}
		}
		for _, label := range c.Buttons {
			byButton[buttonKey(label)] = c
		}
	}
	b.mu.Lock()
	b.commands = byName
	b.buttons = byButton
	b.ordered = ordered
	b.mu.Unlock()
}

func (b *Bot) command(name string) *Command {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commands[name]
}

func (b *Bot) button(text string) *Command {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buttons[buttonKey(text)]
}

// MenuCommands lists the slash commands for the Telegram menu.
func (b *Bot) MenuCommands() []transport.BotCommand {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(b.ordered))
	for _, c := range b.ordered {
		desc := c.Description
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		out = append(out, transport.BotCommand{Command: c.Route, Description: desc})
	}
	return out
}

// route resolves a message to a job. nil means the message is ignored.
func (b *Bot) route(msg *transport.Message) func(context.Context) {
	if msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	key := pendingKey{chatID: msg.ChatID, userID: msg.FromID}

	if strings.HasPrefix(text, "/") {
		word, rest := splitCommand(text)
		cmd := b.command(word)
		if cmd == nil {
			// Commands addressed to other bots in a group are not ours to answer.
			if msg.IsGroup() {
				return nil
			}
			return b.replyJob(msg, textUnknownCommand)
		}
		b.pending.clear(key)
		return b.job(cmd, msg, rest)
	}

	if cmd := b.button(text); cmd != nil {
		b.pending.clear(key)
		return b.job(cmd, msg, "")
	}

	if route, ok := b.pending.take(key, b.now()); ok {
		if cmd := b.command(route); cmd != nil {
			return b.job(cmd, msg, text)
		}
	}

	if msg.IsGroup() {
		return nil
	}
	return b.replyJob(msg, textUseButtons)
}

func (b *Bot) job(cmd *Command, msg *transport.Message, argText string) func(context.Context) {
	if cmd.Access == AccessOwnerOnly && !b.isOwner(msg.FromID) {
		return b.replyJob(msg, textForbidden)
	}

	rid := newReqID()
	req := &Request{
		Msg:     msg,
		Chat:    transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Route,
		ArgText: argText,
		Args:    strings.Fields(argText),
		ReqID:   rid,
		Logger: b.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = b.config().CommandTimeout
	}
	mws := []Middleware{MWPanicRecover(b.log), MWRequestLog(b.log)}
	if cmd.Audit {
		mws = append(mws, MWAudit(b.deps.Store, b.now))
	}
	if !cmd.Unbounded {
		mws = append(mws, MWTimeout(timeout))
	}
	final := Chain(cmd.Handle, mws...)

	return func(ctx context.Context) { _ = final(ctx, req) }
}

func (b *Bot) replyJob(msg *transport.Message, text string) func(context.Context) {
	to := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	kb := keyboardFor(msg)
	return func(ctx context.Context) {
		if _, err := b.deps.Sender.SendText(ctx, to, text, &transport.SendOptions{Keyboard: kb}); err != nil {
			b.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		}
	}
}

// handle routes and runs a message inline.
func (b *Bot) handle(ctx context.Context, msg *transport.Message) {
	if job := b.route(msg); job != nil {
		job(ctx)
	}
}

// Run dispatches updates to a bounded worker pool until ctx is done or
// updates is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) error {
	workers := b.config().Workers

	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(b.log.With(logx.String("comp", "bot.router"))),
		supervisor.WithCancelOnError(false),
	)
	jobs := make(chan func(context.Context), 64)

	b.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								b.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job(c)
					}()
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := b.route(up.Message)
			if job == nil {
				continue
			}
			select {
			case jobs <- job:
			default:
				b.replyJob(up.Message, textBusy)(ctx)
			}
		}
	}
}
