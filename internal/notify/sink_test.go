package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/pkg/config"
)

func sampleMessage() Message {
	return Message{
		Title: "Admin login key requested",
		Fields: []Field{
			{Name: "Key", Value: "ab12cd34"},
			{Name: "Nonce", Value: "n1"},
		},
	}
}

func TestMessage_Content(t *testing.T) {
	assert.Equal(t, "Admin login key requested\nKey: ab12cd34\nNonce: n1", sampleMessage().Content())
}

func TestMessage_Value(t *testing.T) {
	msg := sampleMessage()
	assert.Equal(t, "ab12cd34", msg.Value("Key"))
	assert.Equal(t, "", msg.Value("Missing"))
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	_, ok := sink.Last()
	assert.False(t, ok)

	require.NoError(t, sink.Send(t.Context(), sampleMessage()))
	last, ok := sink.Last()
	require.True(t, ok)
	assert.Equal(t, "n1", last.Value("Nonce"))

	boom := errors.New("boom")
	sink.FailWith(boom)
	assert.ErrorIs(t, sink.Send(t.Context(), sampleMessage()), boom)
	assert.Len(t, sink.Messages(), 1)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(zap.NewNop())
	assert.NoError(t, sink.Send(t.Context(), sampleMessage()))
}

func TestWebhookSink_Send(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, sink.Send(t.Context(), sampleMessage()))
	assert.Equal(t, sampleMessage().Content(), got.Content)
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second, zap.NewNop())
	err := sink.Send(t.Context(), sampleMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestWebhookSink_TruncatesLongContent(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	msg := Message{Title: strings.Repeat("x", 3*maxContentLength)}
	sink := NewWebhookSink(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, sink.Send(t.Context(), msg))
	assert.Len(t, got.Content, maxContentLength)
}

func TestWebhookSink_TruncatesOnRuneBoundary(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	// One ASCII byte then two-byte runes puts the limit mid-rune
	msg := Message{Title: "x" + strings.Repeat("é", maxContentLength)}
	sink := NewWebhookSink(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, sink.Send(t.Context(), msg))
	assert.True(t, utf8.ValidString(got.Content))
	assert.Len(t, got.Content, maxContentLength-1)
	assert.NotContains(t, got.Content, "\uFFFD")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"a€b", 3, "a"},
		{"a€b", 4, "a€"},
		{"€", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.n))
		})
	}
}

func TestWebhookSink_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sink := NewWebhookSink(url, time.Second, zap.NewNop())
	assert.Error(t, sink.Send(t.Context(), sampleMessage()))
}

func TestNew(t *testing.T) {
	sink, err := New(config.NotifierConfig{Type: "log"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, sink)

	sink, err = New(config.NotifierConfig{Type: "webhook", WebhookURL: "https://hooks.example.com/x"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &WebhookSink{}, sink)

	_, err = New(config.NotifierConfig{Type: "webhook"}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(config.NotifierConfig{Type: "pager"}, zap.NewNop())
	assert.Error(t, err)
}
