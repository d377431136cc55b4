package vk

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrBadHandle = errors.New("cannot extract a community name")

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_.]{2,64}$`)

// ParseHandle extracts a community screen name from the forms operators paste:
// "https://vk.com/name", "vk.com/name?x=1", "m.vk.com/name/", "@name" or "name".
func ParseHandle(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return "", ErrBadHandle
	}

	low := strings.ToLower(s)
	if strings.Contains(low, "vk.com/") || strings.Contains(low, "vk.ru/") {
		if !strings.Contains(low, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return "", ErrBadHandle
		}
		s = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
	} else if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "/")
	if !handleRe.MatchString(s) {
		return "", ErrBadHandle
	}
	return strings.ToLower(s), nil
}
