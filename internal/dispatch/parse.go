// ABOUTME: Command parsing for inbound requests
// ABOUTME: The first word selects a command case-insensitively; anything else is a plain turn

package dispatch

import (
	"strings"
	"unicode"
)

// Kind is the resolved intent of an inbound request.
type Kind int

const (
	KindPlain Kind = iota
	KindStop
	KindNewChat
	KindRemember
	KindRecall
	KindAlternate
	KindSearch
)

var kindNames = map[Kind]string{
	KindPlain:     "plain",
	KindStop:      "stop",
	KindNewChat:   "newchat",
	KindRemember:  "remember",
	KindRecall:    "recall",
	KindAlternate: "alternate",
	KindSearch:    "search",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var keywords = map[string]Kind{
	"stop":     KindStop,
	"newchat":  KindNewChat,
	"remember": KindRemember,
	"recall":   KindRecall,
	"notnice":  KindAlternate,
	"venice":   KindAlternate,
	"search":   KindSearch,
}

// Command is a parsed request. For KindPlain, Arg is the whole text.
type Command struct {
	Kind Kind
	Arg  string
}

// Parse resolves text, which must already have the mention removed.
func Parse(text string) Command {
	trimmed := strings.TrimSpace(text)
	head, rest := splitFirstWord(trimmed)

	kind, ok := keywords[strings.ToLower(head)]
	if !ok {
		return Command{Kind: KindPlain, Arg: trimmed}
	}
	return Command{Kind: kind, Arg: strings.TrimSpace(rest)}
}

func splitFirstWord(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}
