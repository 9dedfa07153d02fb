// ABOUTME: Tests for the completion gateway and provider clients
// ABOUTME: Uses httptest servers to verify wire format, error classification, and cancellation

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vito-gateway/internal/store"
)

var testHistory = []store.Turn{
	{Role: store.RoleUser, Text: "hello"},
	{Role: store.RoleAssistant, Text: "hi there"},
	{Role: store.RoleUser, Text: "how are you"},
}

func TestComposeSystem(t *testing.T) {
	assert.Equal(t, "base", ComposeSystem("base", nil))
	assert.Equal(t,
		"base\n\n[USER MEMORIES]:\n[2025-01-01] likes tea\n[2025-01-02] has a cat",
		ComposeSystem("base", []string{"[2025-01-01] likes tea", "[2025-01-02] has a cat"}),
	)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, KindRateLimited, ClassifyStatus(http.StatusTooManyRequests))
	assert.Equal(t, KindNotFound, ClassifyStatus(http.StatusNotFound))
	assert.Equal(t, KindNotFound, ClassifyStatus(http.StatusUnauthorized))
	assert.Equal(t, KindTransport, ClassifyStatus(http.StatusInternalServerError))
	assert.Equal(t, KindTransport, ClassifyStatus(http.StatusBadGateway))
}

func TestErrorDetail(t *testing.T) {
	assert.Equal(t, "quota exceeded", errorDetail([]byte("  quota exceeded\n")))

	long := strings.Repeat("é", 250)
	got := errorDetail([]byte(long))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 200)+"...", got)
}

func TestProviderError_UserMessage(t *testing.T) {
	err := &ProviderError{Provider: "gemini", Kind: KindNotFound, Status: 404, Err: assert.AnError}
	assert.Equal(t, "gemini error: not_found (check configuration)", err.UserMessage())
	assert.NotContains(t, err.UserMessage(), assert.AnError.Error())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGemini_Complete(t *testing.T) {
	var got geminiRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  fine, "},{"text":"thanks  "}]}}]}`))
	}))
	defer ts.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "test-key", Model: "test-model", BaseURL: ts.URL})
	require.NoError(t, err)

	text, err := g.Complete(context.Background(), &Request{System: "be nice", History: testHistory})
	require.NoError(t, err)
	assert.Equal(t, "fine, thanks", text)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be nice", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "how are you", got.Contents[2].Parts[0].Text)
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota"}}`, KindRateLimited},
		{"model not found", http.StatusNotFound, `{"error":{"message":"no such model"}}`, KindNotFound},
		{"server error", http.StatusInternalServerError, `oops`, KindTransport},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, KindEmptyResponse},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`, KindEmptyResponse},
		{"bad json", http.StatusOK, `{`, KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			g, err := NewGemini(GeminiConfig{APIKey: "k", BaseURL: ts.URL})
			require.NoError(t, err)

			_, err = g.Complete(context.Background(), &Request{History: testHistory})
			pe, ok := AsProviderError(err)
			require.True(t, ok, "expected ProviderError, got %v", err)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, "gemini", pe.Provider)
		})
	}
}

func TestGemini_TransportFailureHidesKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "secret-key", BaseURL: url})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), &Request{History: testHistory})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindTransport, pe.Kind)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestGemini_CancelAbandonsCall(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	g, err := NewGemini(GeminiConfig{APIKey: "k", BaseURL: ts.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = g.Complete(ctx, &Request{History: testHistory})
	assert.ErrorIs(t, err, context.Canceled)
	_, isProvider := AsProviderError(err)
	assert.False(t, isProvider, "cancellation is not a provider failure")
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{})
	assert.Error(t, err)

	g, err := NewGemini(GeminiConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, g.Model())
}

func TestOpenRouter_Complete(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" spicy answer "}}]}`))
	}))
	defer ts.Close()

	o, err := NewOpenRouter(OpenRouterConfig{APIKey: "or-key", Model: "venice/uncensored", BaseURL: ts.URL})
	require.NoError(t, err)

	text, err := o.Complete(context.Background(), &Request{System: "sys", History: testHistory})
	require.NoError(t, err)
	assert.Equal(t, "spicy answer", text)

	assert.Equal(t, "venice/uncensored", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestOpenRouter_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	o, err := NewOpenRouter(OpenRouterConfig{APIKey: "k", Model: "m", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), &Request{History: testHistory})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, pe.Kind)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)

	_, err = NewOpenRouter(OpenRouterConfig{APIKey: "k"})
	assert.Error(t, err, "model is required")
}

type stubProvider struct {
	name  string
	reply string
	calls int
}

func (s *stubProvider) Complete(ctx context.Context, req *Request) (string, error) {
	s.calls++
	return s.reply, nil
}
func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return "stub" }

func TestGateway_Routes(t *testing.T) {
	def := &stubProvider{name: "a", reply: "from a"}
	alt := &stubProvider{name: "b", reply: "from b"}
	gw := NewGateway(def, alt, nil)

	text, err := gw.Complete(context.Background(), RouteDefault, testHistory, "")
	require.NoError(t, err)
	assert.Equal(t, "from a", text)

	text, err = gw.Complete(context.Background(), RouteAlternate, testHistory, "")
	require.NoError(t, err)
	assert.Equal(t, "from b", text)

	single := NewGateway(def, nil, nil)
	assert.Same(t, def, single.Provider(RouteAlternate).(*stubProvider))
}
