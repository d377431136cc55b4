// Package tgui provides small helpers for composing Telegram messages:
// HTML escaping, rune-safe truncation and a line builder for status cards
// and alerts sent with ParseMode="HTML".
package tgui
