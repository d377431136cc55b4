package fanout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"vkwatch/internal/retry"
	"vkwatch/internal/transport"
	"vkwatch/pkg/logx"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	chats  ChatLister
	sender transport.Sender
	http   *http.Client
	log    logx.Logger
	sleep  retry.Sleeper
}

type Option func(*Service)

// WithHTTPClient sets the client used for photo downloads.
func WithHTTPClient(c *http.Client) Option { return func(s *Service) { s.http = c } }

// WithSleeper replaces the retry wait, mainly for tests.
func WithSleeper(sl retry.Sleeper) Option { return func(s *Service) { s.sleep = sl } }

func New(cfg Config, chats ChatLister, sender transport.Sender, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	s := &Service{
		cfg:     cfg,
		limiter: newLimiter(cfg.RatePerSec),
		chats:   chats,
		sender:  sender,
		log:     log.With(logx.String("comp", "fanout")),
		sleep:   retry.Sleep,
	}
	for _, o := range opts {
		o(s)
	}
	if s.http == nil {
		s.http = &http.Client{Timeout: cfg.PhotoTimeout}
	}
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.PhotoTimeout <= 0 {
		cfg.PhotoTimeout = 10 * time.Second
	}
	return cfg
}

func newLimiter(rps float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Apply swaps pacing and retry settings for later broadcasts.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.RatePerSec != s.cfg.RatePerSec {
		s.limiter = newLimiter(cfg.RatePerSec)
	}
	s.cfg = cfg
}

// Broadcast sends a to every chat known at call time. Partial failure is not
// an error; an error is returned only when the chat list cannot be read.
func (s *Service) Broadcast(ctx context.Context, a Alert) (Report, error) {
	chats, err := s.chats.ListChats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list chats: %w", err)
	}
	rep := Report{Total: len(chats)}
	if len(chats) == 0 {
		s.log.Warn("no subscribed chats; alert dropped")
		return rep, nil
	}

	var photo *transport.Photo
	if a.PhotoURL != "" && utf8.RuneCountInString(a.Text) <= captionLimit {
		data, err := s.downloadPhoto(ctx, a.PhotoURL)
		if err != nil {
			s.log.Warn("photo download failed; sending text", logx.String("url", a.PhotoURL), logx.Err(err))
		} else {
			photo = &transport.Photo{Data: data, FileName: "avatar.jpg"}
		}
	}

	start := time.Now()
	for _, c := range chats {
		if ctx.Err() != nil {
			rep.Failed++
			rep.Failures = append(rep.Failures, c.ChatID)
			continue
		}
		textOnly, err := s.sendOne(ctx, c.ChatID, a.Text, photo)
		if err != nil {
			rep.Failed++
			rep.Failures = append(rep.Failures, c.ChatID)
			s.log.Warn("alert delivery failed", logx.Int64("chat_id", c.ChatID), logx.Err(err))
			continue
		}
		rep.Delivered++
		if textOnly && photo != nil {
			rep.TextOnly++
		}
	}

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if rep.Failed > 0 {
		s.log.Warn("alert fanout finished with failures", fields...)
	} else {
		s.log.Info("alert fanout finished", fields...)
	}
	return rep, nil
}

// sendOne delivers to one chat. It reports whether the text form was used.
func (s *Service) sendOne(ctx context.Context, chatID int64, text string, photo *transport.Photo) (bool, error) {
	s.mu.Lock()
	lim := s.limiter
	cfg := s.cfg
	s.mu.Unlock()

	to := transport.ChatTarget{ChatID: chatID}
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	usePhoto := photo != nil

	policy := retry.Policy{Attempts: cfg.Attempts, Base: cfg.RetryDelay}
	retryable := func(err error) bool {
		return !errors.Is(err, transport.ErrRejected) && ctx.Err() == nil
	}
	hook := retry.OnRetry(func(attempt int, d time.Duration, err error) {
		s.log.Debug("alert send retry scheduled",
			logx.Int64("chat_id", chatID),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", d),
			logx.Err(err),
		)
	})

	_, err := retry.Do(ctx, policy, retryable, func(ctx context.Context) (struct{}, error) {
		if err := lim.Wait(ctx); err != nil {
			return struct{}{}, err
		}
		if usePhoto {
			_, err := s.sender.SendPhoto(ctx, to, *photo, text, opt)
			if err == nil {
				return struct{}{}, nil
			}
			if !errors.Is(err, transport.ErrRejected) {
				return struct{}{}, err
			}
			s.log.Debug("photo rejected; falling back to text", logx.Int64("chat_id", chatID), logx.Err(err))
			usePhoto = false
		}
		_, err := s.sender.SendText(ctx, to, text, opt)
		return struct{}{}, err
	}, retry.WithSleeper(s.sleep), hook)
	return !usePhoto, err
}
