package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkwatch/internal/retry"
	"vkwatch/internal/vk"
	"vkwatch/pkg/logx"
)

type scriptedSource struct {
	calls int
	errs  []error
	posts []Post
}

func (s *scriptedSource) next() error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedSource) WallPosts(context.Context, int64, int) ([]Post, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return s.posts, nil
}

func (s *scriptedSource) WallComments(context.Context, int64, int64, int) ([]Comment, error) {
	return nil, s.next()
}

func (s *scriptedSource) User(_ context.Context, id int64) (Author, error) {
	return Author{ID: id}, s.next()
}

func (s *scriptedSource) Group(_ context.Context, h string) (Page, error) {
	return Page{Domain: h}, s.next()
}

func noWait(waits *[]time.Duration) retry.Option {
	return retry.WithSleeper(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
}

func TestPostsRetriesTransientExactlyThreeTimes(t *testing.T) {
	flood := &vk.Error{Code: vk.CodeFloodControl, Message: "flood"}
	src := &scriptedSource{errs: []error{flood, flood, flood, flood}}
	var waits []time.Duration
	f := New(src, Config{}, logx.Nop(), noWait(&waits))

	_, err := f.Posts(context.Background(), Page{GroupID: 1}, 20)
	require.Error(t, err)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)

	var ex *retry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, vk.CodeFloodControl, vk.Code(err))
}

func TestPostsRecoversAfterTransient(t *testing.T) {
	src := &scriptedSource{
		errs:  []error{&vk.HTTPError{Status: 502}},
		posts: []Post{{ID: 1, Text: "x"}},
	}
	var waits []time.Duration
	f := New(src, Config{}, logx.Nop(), noWait(&waits))

	posts, err := f.Posts(context.Background(), Page{GroupID: 1}, 20)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 2, src.calls)
}

func TestPermanentErrorNotRetried(t *testing.T) {
	src := &scriptedSource{errs: []error{&vk.Error{Code: vk.CodeAccessDenied}}}
	var waits []time.Duration
	f := New(src, Config{}, logx.Nop(), noWait(&waits))

	_, err := f.ResolvePage(context.Background(), "closed")
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, waits)
	assert.Equal(t, vk.CodeAccessDenied, vk.Code(err))
}

func TestNilSource(t *testing.T) {
	f := New(nil, Config{}, logx.Nop())
	_, err := f.Posts(context.Background(), Page{}, 1)
	assert.ErrorIs(t, err, ErrNoSource)
	assert.False(t, f.Ready())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(&vk.Error{Code: vk.CodeTooManyPerSec}))
	assert.False(t, IsTransient(&vk.Error{Code: vk.CodeNotFound}))
	assert.False(t, IsTransient(errors.New("decode")))
}

func TestVKSourceMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wall.get":
			fmt.Fprint(w, `{"response":{"count":1,"items":[{"id":3,"text":"post","comments":{"count":2}}]}}`)
		case "/wall.getComments":
			fmt.Fprint(w, `{"response":{"count":1,"items":[{"id":9,"from_id":77,"text":"c"}]}}`)
		case "/users.get":
			fmt.Fprint(w, `{"response":[{"id":77,"first_name":"Анна","last_name":"","photo_200":"p"}]}`)
		case "/groups.getById":
			fmt.Fprint(w, `{"response":[{"id":5,"name":"Club","screen_name":"Club5"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := vk.New(vk.Config{Token: "t", BaseURL: srv.URL, RatePerSec: 1000}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	src := VK{Client: c}
	ctx := context.Background()

	posts, err := src.WallPosts(ctx, 5, 20)
	require.NoError(t, err)
	assert.Equal(t, []Post{{ID: 3, Text: "post", CommentCount: 2}}, posts)

	cs, err := src.WallComments(ctx, 5, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, []Comment{{ID: 9, AuthorID: 77, Text: "c"}}, cs)

	a, err := src.User(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, Author{ID: 77, DisplayName: "Анна", PhotoURL: "p"}, a)

	p, err := src.Group(ctx, "club5")
	require.NoError(t, err)
	assert.Equal(t, Page{Domain: "club5", GroupID: 5, Name: "Club"}, p)
}
