package fanout

import (
	"context"
	"time"

	"vkwatch/internal/storage"
)

type Config struct {
	Attempts     int
	RetryDelay   time.Duration
	RatePerSec   float64
	PhotoTimeout time.Duration
}

// Alert is an HTML-formatted message with an optional image.
type Alert struct {
	Text     string
	PhotoURL string
}

type Report struct {
	Total     int
	Delivered int
	Failed    int
	// Failures lists chat ids that exhausted their attempts.
	Failures []int64
	// TextOnly counts deliveries that fell back from photo to text.
	TextOnly int
}

// ChatLister yields the current subscriber list.
type ChatLister interface {
	ListChats(ctx context.Context) ([]storage.Chat, error)
}

// captionLimit is Telegram's photo caption size in characters.
const captionLimit = 1024
