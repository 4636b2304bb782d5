// Package notify delivers secrets to the administrator over an out-of-band
// channel. Sinks receive plaintext keys and codes and must point at a trusted,
// access-controlled destination.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/pkg/config"
)

// Field is a labelled line of a notification
type Field struct {
	Name  string
	Value string
}

// Message is a notification to the administrator
type Message struct {
	Title  string
	Fields []Field
}

// Value returns the value of the named field, or "" if absent
func (m Message) Value(name string) string {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Content renders the message as plaintext
func (m Message) Content() string {
	var b strings.Builder
	b.WriteString(m.Title)
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	return b.String()
}

// Sink sends a message over the out-of-band channel
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// LogSink writes notifications to the log. Intended for local development only.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every message
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notify")}
}

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	s.logger.Warn("Out-of-band notification (log sink, do not use in production)",
		zap.String("content", msg.Content()),
	)
	return nil
}

// MemorySink keeps delivered messages in memory
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes subsequent sends return err (nil restores delivery)
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySink) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of all delivered messages
func (s *MemorySink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Last returns the most recent message
func (s *MemorySink) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// New builds the sink selected by cfg
func New(cfg config.NotifierConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Type {
	case "", "log":
		return NewLogSink(logger), nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook url is required")
		}
		return NewWebhookSink(cfg.WebhookURL, time.Duration(cfg.TimeoutSeconds)*time.Second, logger), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", cfg.Type)
	}
}
