package vk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkwatch/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{Token: "tok", BaseURL: srv.URL, RatePerSec: 1000}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	return c
}

func TestNewRejectsEmptyToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, nil, logx.Nop())
	require.ErrorIs(t, err, ErrEmptyToken)
}

func TestWallGetSendsOwnerFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/wall.get", r.URL.Path)
		assert.Equal(t, "-42", r.Form.Get("owner_id"))
		assert.Equal(t, "10", r.Form.Get("count"))
		assert.Equal(t, "owner", r.Form.Get("filter"))
		assert.Equal(t, "tok", r.Form.Get("access_token"))
		assert.Equal(t, DefaultVersion, r.Form.Get("v"))
		fmt.Fprint(w, `{"response":{"count":2,"items":[{"id":7,"text":"hi","comments":{"count":3}},{"id":6,"text":""}]}}`)
	})

	posts, err := c.WallGet(context.Background(), 42, 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(7), posts[0].ID)
	assert.Equal(t, 3, posts[0].Comments.Count)
}

func TestWallGetCommentsDecodesItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "99", r.Form.Get("post_id"))
		fmt.Fprint(w, `{"response":{"count":1,"items":[{"id":5,"from_id":123,"text":"Ищу кот"}]}}`)
	})

	cs, err := c.WallGetComments(context.Background(), 1, 99, 100)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, Comment{ID: 5, FromID: 123, Text: "Ищу кот"}, cs[0])
}

func TestUsersGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("user_ids") == "1" {
			fmt.Fprint(w, `{"response":[{"id":1,"first_name":"Иван","last_name":"Петров","city":{"id":2,"title":"Москва"},"photo_200":"https://x/p.jpg"}]}`)
			return
		}
		fmt.Fprint(w, `{"response":[]}`)
	})

	u, ok, err := c.UsersGet(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Иван", u.FirstName)
	require.NotNil(t, u.City)
	assert.Equal(t, "Москва", u.City.Title)
	assert.Equal(t, "https://x/p.jpg", u.Photo200)

	_, ok, err = c.UsersGet(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupsGetByIDBothShapes(t *testing.T) {
	for name, body := range map[string]string{
		"array":   `{"response":[{"id":11,"name":"Relax","screen_name":"relaxmore1"}]}`,
		"wrapped": `{"response":{"groups":[{"id":11,"name":"Relax","screen_name":"relaxmore1"}],"profiles":[]}}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})
			g, err := c.GroupsGetByID(context.Background(), "relaxmore1")
			require.NoError(t, err)
			assert.Equal(t, int64(11), g.ID)
			assert.Equal(t, "relaxmore1", g.ScreenName)
		})
	}
}

func TestAPIErrorIsTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"error_code":15,"error_msg":"Access denied"}}`)
	})

	_, err := c.GroupsGetByID(context.Background(), "closed")
	require.Error(t, err)
	assert.Equal(t, CodeAccessDenied, Code(err))
	assert.False(t, IsTransient(err))

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "groups.getById", ae.Method)
}

func TestHTTPStatusErrors(t *testing.T) {
	for status, transient := range map[int]bool{
		http.StatusBadGateway:      true,
		http.StatusTooManyRequests: true,
		http.StatusForbidden:       false,
	} {
		status := status
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err := c.WallGet(context.Background(), 1, 1)
		var he *HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, status, he.Status)
		assert.Equal(t, transient, IsTransient(err), status)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown", &Error{Code: CodeUnknown}, true},
		{"too many", &Error{Code: CodeTooManyPerSec}, true},
		{"flood", &Error{Code: CodeFloodControl}, true},
		{"internal", &Error{Code: CodeInternal}, true},
		{"auth", &Error{Code: CodeAuthFailed}, false},
		{"not found", fmt.Errorf("wrap: %w", &Error{Code: CodeNotFound}), false},
		{"private", &Error{Code: CodePrivateProfile}, false},
		{"http 429", &HTTPError{Status: 429}, true},
		{"http 503", &HTTPError{Status: 503}, true},
		{"http 404", &HTTPError{Status: 404}, false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestParseHandle(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://vk.com/relaxmore1", "relaxmore1", false},
		{"vk.com/RelaxMore1?w=wall-1_2", "relaxmore1", false},
		{"https://m.vk.com/club123/", "club123", false},
		{"@public_page", "public_page", false},
		{"relaxmore1", "relaxmore1", false},
		{"  relaxmore1  ", "relaxmore1", false},
		{"", "", true},
		{"https://vk.com/", "", true},
		{"не ссылка", "", true},
	}
	for _, tc := range cases {
		got, err := ParseHandle(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrBadHandle, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
