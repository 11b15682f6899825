package observability

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pulse-backend/internal/apperrors"
)

// ErrSpanClosed is returned when closing a span that has already been closed.
var ErrSpanClosed = errors.New("span already closed")

// SpanStatus is the terminal status of a span.
type SpanStatus int

const (
	StatusUnset SpanStatus = iota
	StatusOK
	StatusError
)

func (s SpanStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// SpanEvent is a timestamped annotation on a span. Events are append-only
// and their insertion order is preserved.
type SpanEvent struct {
	Name       string
	Time       time.Time
	Attributes []attribute.KeyValue
}

// Span is a timed unit of work in a per-request trace tree. A span is open
// from creation until Close; only open spans accept attribute and event
// writes or child creation. A closed span is immutable.
//
// Mutation is only ever performed by the goroutine that owns the request;
// the mutex guards the open/closed transition so a double close is detected
// reliably.
type Span struct {
	tracer  *Tracer
	traceID string
	spanID  string
	name    string
	parent  *Span
	sampled bool

	mu            sync.Mutex
	closed        bool
	startTime     time.Time
	endTime       time.Time
	attributes    []attribute.KeyValue
	events        []SpanEvent
	children      []*Span
	status        SpanStatus
	statusMessage string
}

func newRootSpan(tracer *Tracer, name string, sampled bool) *Span {
	return &Span{
		tracer:    tracer,
		traceID:   newTraceID(),
		spanID:    newSpanID(),
		name:      name,
		sampled:   sampled,
		startTime: time.Now(),
	}
}

// StartChild opens a child span, appended to this span's children in
// creation order. Children of a closed span are detached and never exported.
func (s *Span) StartChild(name string) *Span {
	child := &Span{
		tracer:    s.tracer,
		traceID:   s.traceID,
		spanID:    newSpanID(),
		name:      name,
		parent:    s,
		sampled:   s.sampled,
		startTime: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		child.parent = nil
		child.sampled = false
		return child
	}
	s.children = append(s.children, child)
	return child
}

// SetAttributes sets attributes on an open span. Keys are unique; a later
// write for an existing key overwrites the earlier value. Writes to a closed
// span are dropped.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, attr := range attrs {
		replaced := false
		for i, existing := range s.attributes {
			if existing.Key == attr.Key {
				s.attributes[i] = attr
				replaced = true
				break
			}
		}
		if !replaced {
			s.attributes = append(s.attributes, attr)
		}
	}
}

// AddEvent appends a timestamped event to an open span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events = append(s.events, SpanEvent{
		Name:       name,
		Time:       time.Now(),
		Attributes: attrs,
	})
}

// RecordError appends a structured exception event. It does not change the
// span status; Close with StatusError is the canonical way to mark failure.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.AddEvent("exception",
		attribute.String("exception.type", apperrors.TypeName(err)),
		attribute.String("exception.message", err.Error()),
	)
}

// Close transitions the span to closed, stamps the end time, and hands it to
// the exporter. Closing an already-closed span returns ErrSpanClosed. A span
// closed with StatusError always carries at least one error event.
func (s *Span) Close(status SpanStatus, message string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSpanClosed
	}
	s.closed = true
	s.endTime = time.Now()
	if s.endTime.Before(s.startTime) {
		s.endTime = s.startTime
	}
	s.status = status
	s.statusMessage = message
	if status == StatusError && !s.hasErrorEventLocked() {
		s.events = append(s.events, SpanEvent{
			Name: "error",
			Time: s.endTime,
			Attributes: []attribute.KeyValue{
				attribute.String("error.message", message),
			},
		})
	}
	s.mu.Unlock()

	if s.tracer != nil {
		s.tracer.export(s)
	}
	return nil
}

func (s *Span) hasErrorEventLocked() bool {
	for _, ev := range s.events {
		if ev.Name == "exception" || ev.Name == "error" {
			return true
		}
	}
	return false
}

// Name returns the span name.
func (s *Span) Name() string { return s.name }

// TraceID returns the 16-byte hex trace identifier shared by the whole tree.
func (s *Span) TraceID() string { return s.traceID }

// SpanID returns the 8-byte hex span identifier.
func (s *Span) SpanID() string { return s.spanID }

// Parent returns the enclosing span, or nil for a root span. The reference
// is a back-pointer only; a span owns its children, never its parent.
func (s *Span) Parent() *Span { return s.parent }

// IsRoot reports whether this span is the root of its trace tree.
func (s *Span) IsRoot() bool { return s.parent == nil }

// Sampled reports whether the tree this span belongs to will be exported.
func (s *Span) Sampled() bool { return s.sampled }

// StartTime returns when the span was opened.
func (s *Span) StartTime() time.Time { return s.startTime }

// EndTime returns when the span was closed, or the zero time while open.
func (s *Span) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// Duration returns the elapsed time between start and close.
func (s *Span) Duration() time.Duration {
	return s.EndTime().Sub(s.startTime)
}

// Closed reports whether the span has been closed.
func (s *Span) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Status returns the terminal status and its optional message.
func (s *Span) Status() (SpanStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.statusMessage
}

// Attributes returns a snapshot of the span attributes.
func (s *Span) Attributes() []attribute.KeyValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attribute.KeyValue, len(s.attributes))
	copy(out, s.attributes)
	return out
}

// Events returns a snapshot of the span events in insertion order.
func (s *Span) Events() []SpanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpanEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Children returns a snapshot of the child spans in creation order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

func newTraceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func newSpanID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
