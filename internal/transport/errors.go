package transport

import "errors"

// ErrRejected marks a send the platform refused for a reason retrying cannot fix
// (chat not found, bot blocked, malformed media).
var ErrRejected = errors.New("rejected by platform")
