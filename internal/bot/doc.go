// Package bot is the operator front end: slash commands and reply-keyboard
// buttons that manage tracked groups, keywords and subscribed chats, run a
// check on demand and export the Excel reports.
//
// Buttons that need an argument prompt for it and remember the prompt per
// user and chat until the next message or PendingTTL, whichever comes first.
package bot
