// ABOUTME: Package matrix documentation
// ABOUTME: Describes how room messages become dispatch events

// Package matrix is the chat transport. A room message is dispatched when it
// addresses the bot, either by mentioning it (m.mentions metadata or the bot's
// ID or display name in the body) or by replying to one of the bot's messages.
// The mention is removed from the text, and the author of the replied-to
// message becomes the event's referenced author so admins can stop another
// user's work by replying "stop" to it.
//
// Replies thread to the triggering event and carry an HTML body rendered from
// markdown. Encrypted rooms are supported when a crypto directory is
// configured.
package matrix
