// Package notify routes notification intents to their sinks. Rendering and
// delivery of user-facing messages happen outside this process; the sinks
// here log intents or annotate the store.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/runger/bikeshare/internal/metrics"
	"github.com/runger/bikeshare/internal/sheet"
)

// Channel is an intent's audience.
type Channel string

const (
	ChannelUser      Channel = "user"
	ChannelAdmin     Channel = "admin"
	ChannelDeveloper Channel = "developer"
	ChannelSheetNote Channel = "sheetNote"
)

// Field keys read by the sheet-note sink.
const (
	FieldRef   = "ref"
	FieldColor = "color"
	FieldClear = "clear"
)

// ErrNoSink is returned when an intent's channel has no sink.
var ErrNoSink = errors.New("no sink for channel")

// Intent describes one message to render and deliver.
type Intent struct {
	Code    string
	Channel Channel
	Fields  map[string]any
	Message string
}

// New creates an intent on the channel registered for code.
func New(code string, fields map[string]any) Intent {
	if fields == nil {
		fields = map[string]any{}
	}
	return Intent{Code: code, Channel: ChannelOf(code), Fields: fields}
}

// Dispatcher delivers intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent Intent) error
}

// MessageSource resolves a code to a message template.
type MessageSource interface {
	Message(code string) (string, bool)
}

// Router fans intents out to a sink per channel.
type Router struct {
	sinks  map[Channel]Dispatcher
	logger *slog.Logger
}

// NewRouter creates a Router. logger may be nil.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: make(map[Channel]Dispatcher), logger: logger}
}

// Route registers d for ch, replacing any previous sink.
func (r *Router) Route(ch Channel, d Dispatcher) *Router {
	r.sinks[ch] = d
	return r
}

// Dispatch delivers each intent, filling in its message from msgs when one
// is registered. Delivery failures do not stop later intents; they are
// joined into the returned error.
func (r *Router) Dispatch(ctx context.Context, msgs MessageSource, intents ...Intent) error {
	var errs []error
	for _, in := range intents {
		if in.Message == "" && msgs != nil {
			if m, ok := msgs.Message(in.Code); ok {
				in.Message = m
			}
		}
		sink, ok := r.sinks[in.Channel]
		if !ok {
			metrics.NotificationsDispatched.WithLabelValues(string(in.Channel), "unrouted").Inc()
			errs = append(errs, fmt.Errorf("%w: %s (%s)", ErrNoSink, in.Channel, in.Code))
			continue
		}
		if err := sink.Dispatch(ctx, in); err != nil {
			metrics.NotificationsDispatched.WithLabelValues(string(in.Channel), "error").Inc()
			r.logger.Warn("notification dispatch failed", "code", in.Code, "channel", in.Channel, "error", err)
			errs = append(errs, fmt.Errorf("dispatch %s: %w", in.Code, err))
			continue
		}
		metrics.NotificationsDispatched.WithLabelValues(string(in.Channel), "ok").Inc()
	}
	return errors.Join(errs...)
}

// LogSink writes intents to a structured logger for an external renderer
// to pick up.
type LogSink struct {
	Logger *slog.Logger
}

// Dispatch implements Dispatcher.
func (s LogSink) Dispatch(ctx context.Context, in Intent) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"code", in.Code, "channel", in.Channel}
	if in.Message != "" {
		attrs = append(attrs, "message", in.Message)
	}
	attrs = append(attrs, slog.Any("fields", in.Fields))
	logger.InfoContext(ctx, "notification", attrs...)
	return nil
}

// SheetNoteSink annotates a cell of the store. The target comes from the
// intent's ref field.
type SheetNoteSink struct {
	Store sheet.Store
}

// Dispatch implements Dispatcher.
func (s SheetNoteSink) Dispatch(ctx context.Context, in Intent) error {
	ref, _ := in.Fields[FieldRef].(string)
	if ref == "" {
		return fmt.Errorf("intent %s has no %s field", in.Code, FieldRef)
	}
	mark := sheet.Mark{Note: in.Message}
	mark.Color, _ = in.Fields[FieldColor].(string)
	mark.Clear, _ = in.Fields[FieldClear].(bool)
	return s.Store.MarkCell(ctx, ref, mark)
}

// Recorder keeps every intent it receives. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
}

// Dispatch implements Dispatcher.
func (r *Recorder) Dispatch(_ context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
	return nil
}

// Intents returns what has been recorded.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Intent(nil), r.intents...)
}

// Codes returns the recorded codes in order.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.intents))
	for i, in := range r.intents {
		out[i] = in.Code
	}
	return out
}
