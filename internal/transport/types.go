package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID        int
	ChatID    int64
	ChatType  string // private | group | supergroup | channel
	ChatTitle string
	ThreadID  int // forum topic thread id (0 if none)
	FromID    int64
	FromName  string
	Text      string
}

// IsGroup reports whether the message came from a multi-user chat.
func (m *Message) IsGroup() bool {
	return m != nil && (m.ChatType == "group" || m.ChatType == "supergroup")
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Keyboard is an optional persistent reply keyboard (rows of button labels).
	Keyboard [][]string
}

// Photo is an in-memory image upload.
type Photo struct {
	Data     []byte
	FileName string
}

// Document is an in-memory file upload.
type Document struct {
	Data     []byte
	FileName string
	MIME     string
}

// Sender delivers outbound messages to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo Photo, caption string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document, caption string) (MessageRef, error)
}

// Adapter is a chat platform connection: inbound updates plus outbound sends.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
