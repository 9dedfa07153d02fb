// ABOUTME: Outbound side of the Matrix bridge
// ABOUTME: Replies thread to the triggering event; markdown is rendered to HTML with goldmark

package matrix

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Table, extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// responder answers one inbound event.
type responder struct {
	bridge  *Bridge
	roomID  id.RoomID
	eventID id.EventID
	sender  id.UserID
}

func (r *responder) Reply(ctx context.Context, text string) error {
	content := render(text)
	content.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: r.eventID}}
	content.Mentions = &event.Mentions{UserIDs: []id.UserID{r.sender}}
	return r.bridge.send(ctx, r.roomID, content)
}

func (r *responder) FollowUp(ctx context.Context, text string) error {
	content := render(text)
	content.Mentions = &event.Mentions{}
	return r.bridge.send(ctx, r.roomID, content)
}

func (r *responder) Typing(ctx context.Context, on bool) {
	r.bridge.setTyping(r.roomID, on)
}

// render builds a text message, adding an HTML body only when the markdown
// produces markup beyond a single plain paragraph.
func render(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: text}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return content
	}
	formatted := strings.TrimSpace(buf.String())
	if isPlainParagraph(formatted, text) {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = formatted
	return content
}

func isPlainParagraph(formatted, text string) bool {
	inner, ok := strings.CutPrefix(formatted, "<p>")
	if !ok {
		return false
	}
	inner, ok = strings.CutSuffix(inner, "</p>")
	return ok && inner == strings.TrimSpace(text)
}
