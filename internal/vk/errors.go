package vk

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// VK API error codes vkwatch reacts to.
const (
	CodeUnknown        = 1
	CodeAuthFailed     = 5
	CodeTooManyPerSec  = 6
	CodePermission     = 7
	CodeFloodControl   = 9
	CodeInternal       = 10
	CodeAccessDenied   = 15
	CodeUserDeleted    = 18
	CodePrivateProfile = 30
	CodeNotFound       = 100
	CodeInvalidUserID  = 113
	CodeGroupAccess    = 203
)

// Error is an API-level error returned inside a 200 response.
type Error struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
	Method  string `json:"-"`
}

func (e *Error) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("vk %s: error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("vk error %d: %s", e.Code, e.Message)
}

// Temporary reports whether a retry may succeed.
func (e *Error) Temporary() bool {
	switch e.Code {
	case CodeUnknown, CodeTooManyPerSec, CodeFloodControl, CodeInternal:
		return true
	}
	return false
}

// HTTPError is a non-2xx transport response.
type HTTPError struct {
	Method string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("vk %s: http %d %s", e.Method, e.Status, http.StatusText(e.Status))
}

func (e *HTTPError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTransient classifies err for retry: throttling, server faults and
// network failures are transient; auth, access and not-found are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Temporary()
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// Code extracts the API error code, or 0.
func Code(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}
