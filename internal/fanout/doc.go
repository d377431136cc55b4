// Package fanout delivers one alert to every subscribed chat.
//
// Each chat is tried independently: up to Attempts sends spaced by a fixed
// RetryDelay, paced through a shared rate limiter. A chat that still fails is
// reported and skipped; the others are unaffected.
//
// # Images
//
// An alert may carry a photo URL. The image is downloaded once per broadcast;
// if that fails, every chat receives the text form. A chat that rejects the
// photo upload gets the text form in the same attempt.
package fanout
