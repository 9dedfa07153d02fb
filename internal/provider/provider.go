// ABOUTME: Completion gateway over the default and alternate text providers
// ABOUTME: Defines the Provider contract and composes the system instruction

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/vito-gateway/internal/store"
)

// MemoriesMarker introduces the memory block in the system instruction.
const MemoriesMarker = "[USER MEMORIES]:"

// Request is a single completion call.
type Request struct {
	System  string
	History []store.Turn // includes the just-appended user turn
}

// Provider generates text from a conversation.
type Provider interface {
	// Complete returns the generated text. Cancelling ctx abandons the call
	// and returns ctx's error unwrapped; every other failure is a *ProviderError.
	Complete(ctx context.Context, req *Request) (string, error)
	Name() string
	Model() string
}

// Route selects which provider serves a turn.
type Route int

const (
	RouteDefault Route = iota
	RouteAlternate
)

func (r Route) String() string {
	if r == RouteAlternate {
		return "alternate"
	}
	return "default"
}

// Gateway is the uniform entry point used by the dispatcher. It never retries.
type Gateway struct {
	defaultProvider   Provider
	alternateProvider Provider
	logger            *slog.Logger
}

// NewGateway creates a Gateway. alternate may be nil, in which case the
// default provider serves both routes.
func NewGateway(def, alternate Provider, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if alternate == nil {
		alternate = def
	}
	return &Gateway{
		defaultProvider:   def,
		alternateProvider: alternate,
		logger:            logger.With("component", "provider"),
	}
}

// Provider returns the provider serving route.
func (g *Gateway) Provider(route Route) Provider {
	if route == RouteAlternate {
		return g.alternateProvider
	}
	return g.defaultProvider
}

// Complete sends history and system to the provider selected by route.
func (g *Gateway) Complete(ctx context.Context, route Route, history []store.Turn, system string) (string, error) {
	p := g.Provider(route)
	start := time.Now()

	text, err := p.Complete(ctx, &Request{System: system, History: history})
	if err != nil {
		g.logger.Warn("completion failed",
			"provider", p.Name(),
			"model", p.Model(),
			"turns", len(history),
			"duration", time.Since(start),
			"error", err,
		)
		return "", err
	}

	g.logger.Debug("completion finished",
		"provider", p.Name(),
		"model", p.Model(),
		"turns", len(history),
		"duration", time.Since(start),
		"length", len(text),
	)
	return text, nil
}

// ComposeSystem appends the memory block to base: a blank line, the marker,
// then one item per line. With no memories base is returned unchanged.
func ComposeSystem(base string, memories []string) string {
	if len(memories) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(MemoriesMarker)
	for _, m := range memories {
		b.WriteString("\n")
		b.WriteString(m)
	}
	return b.String()
}

// errorDetail pulls a short message out of a provider error body for logs.
func errorDetail(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if runes := []rune(s); len(runes) > max {
		s = string(runes[:max]) + "..."
	}
	return s
}

func statusError(provider string, status int, body []byte) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     ClassifyStatus(status),
		Status:   status,
		Err:      fmt.Errorf("api error: %s", errorDetail(body)),
	}
}
