// Package vk is a minimal client for the VK JSON API methods vkwatch uses.
package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vkwatch/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.vk.com/method/"
	DefaultVersion = "5.131"
)

var ErrEmptyToken = errors.New("vk token is empty")

type Config struct {
	Token   string
	Version string
	BaseURL string
	Timeout time.Duration
	// RatePerSec caps outgoing calls; VK allows 3/s for user tokens.
	RatePerSec float64
}

type Client struct {
	token   string
	version string
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, hc *http.Client, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrEmptyToken
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		token:   strings.TrimSpace(cfg.Token),
		version: cfg.Version,
		base:    cfg.BaseURL,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log,
	}, nil
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *Error          `json:"error"`
}

// call performs one API request and decodes the "response" member into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("access_token", c.token)
	form.Set("v", c.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+method, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vk %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("vk %s: read body: %w", method, err)
	}
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Method: method, Status: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("vk %s: decode: %w", method, err)
	}
	if env.Error != nil {
		env.Error.Method = method
		return env.Error
	}
	c.log.Trace("vk call", logx.String("method", method), logx.Duration("took", time.Since(start)))
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("vk %s: decode response: %w", method, err)
	}
	return nil
}

type Post struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"owner_id"`
	FromID   int64  `json:"from_id"`
	Date     int64  `json:"date"`
	Text     string `json:"text"`
	Comments struct {
		Count int `json:"count"`
	} `json:"comments"`
}

type Comment struct {
	ID     int64  `json:"id"`
	FromID int64  `json:"from_id"`
	Date   int64  `json:"date"`
	Text   string `json:"text"`
}

type City struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      *City  `json:"city"`
	Photo200  string `json:"photo_200"`
}

type Group struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
	IsClosed   int    `json:"is_closed"`
}

type itemsResponse[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

// WallGet returns up to count most recent posts by the community itself.
func (c *Client) WallGet(ctx context.Context, groupID int64, count int) ([]Post, error) {
	p := url.Values{}
	p.Set("owner_id", strconv.FormatInt(-groupID, 10))
	p.Set("count", strconv.Itoa(count))
	p.Set("filter", "owner")
	var out itemsResponse[Post]
	if err := c.call(ctx, "wall.get", p, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// WallGetComments returns up to count comments of a community post.
func (c *Client) WallGetComments(ctx context.Context, groupID, postID int64, count int) ([]Comment, error) {
	p := url.Values{}
	p.Set("owner_id", strconv.FormatInt(-groupID, 10))
	p.Set("post_id", strconv.FormatInt(postID, 10))
	p.Set("count", strconv.Itoa(count))
	p.Set("sort", "desc")
	var out itemsResponse[Comment]
	if err := c.call(ctx, "wall.getComments", p, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// UsersGet resolves one user with city and avatar fields. A missing user yields ok=false.
func (c *Client) UsersGet(ctx context.Context, userID int64) (User, bool, error) {
	p := url.Values{}
	p.Set("user_ids", strconv.FormatInt(userID, 10))
	p.Set("fields", "city,photo_200")
	var out []User
	if err := c.call(ctx, "users.get", p, &out); err != nil {
		return User{}, false, err
	}
	if len(out) == 0 {
		return User{}, false, nil
	}
	return out[0], true, nil
}

// GroupsGetByID resolves a community by screen name or numeric id.
func (c *Client) GroupsGetByID(ctx context.Context, handle string) (Group, error) {
	p := url.Values{}
	p.Set("group_id", handle)
	var raw json.RawMessage
	if err := c.call(ctx, "groups.getById", p, &raw); err != nil {
		return Group{}, err
	}
	// Older API versions return a bare array, newer ones wrap it in {"groups": [...]}.
	var groups []Group
	if err := json.Unmarshal(raw, &groups); err != nil {
		var wrapped struct {
			Groups []Group `json:"groups"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return Group{}, fmt.Errorf("vk groups.getById: decode: %w", err)
		}
		groups = wrapped.Groups
	}
	if len(groups) == 0 {
		return Group{}, &Error{Code: CodeNotFound, Message: "group not found", Method: "groups.getById"}
	}
	return groups[0], nil
}
