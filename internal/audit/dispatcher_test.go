package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) { s.count.Add(1) }

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.gate }

type enteredGateSink struct {
	entered chan struct{}
	gate    chan struct{}
}

func (s *enteredGateSink) Emit(context.Context, Event) {
	s.entered <- struct{}{}
	<-s.gate
}

type deadlineSink struct {
	hadDeadline chan bool
}

func (s *deadlineSink) Emit(ctx context.Context, _ Event) {
	_, ok := ctx.Deadline()
	s.hadDeadline <- ok
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Type: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestCloseFlushesQueuedEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{Type: "login_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
}

func TestDropIfFullDoesNotBlock(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Emit(context.Background(), Event{Type: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked with DropIfFull")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}

	close(sink.gate)
	d.Close()
}

func TestDropIfFullKeepsCriticalEvents(t *testing.T) {
	sink := &enteredGateSink{entered: make(chan struct{}, 8), gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// one event in the worker, one in the buffer
	d.Emit(context.Background(), New(LoginFailure, time.Now(), Source{}))
	<-sink.entered
	d.Emit(context.Background(), New(LoginFailure, time.Now(), Source{}))
	d.Emit(context.Background(), New(LoginFailure, time.Now(), Source{}))
	if d.Dropped() != 1 {
		t.Fatalf("expected the ordinary event to be dropped, got %d drops", d.Dropped())
	}

	queued := make(chan struct{})
	go func() {
		d.Emit(context.Background(), New(AccountLocked, time.Now(), Source{}))
		close(queued)
	}()
	select {
	case <-queued:
		t.Fatal("critical event must wait for buffer space instead of dropping")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	<-queued
	d.Close()
	if d.Dropped() != 1 {
		t.Fatalf("critical event was counted as dropped: %d", d.Dropped())
	}
}

func TestNewEventClassifies(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := New(MFAReplay, at, Source{RequestID: "r1", IP: "10.0.0.1"}).
		ForUser("u1").
		Failed("mfa_invalid").
		With(map[string]string{"step": "42", "empty": ""})

	if ev.Category != CategoryMFA || !ev.Type.Critical() {
		t.Fatalf("unexpected classification: %s critical=%v", ev.Category, ev.Type.Critical())
	}
	if ev.Success || ev.Error != "mfa_invalid" || ev.UserID != "u1" || ev.RequestID != "r1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Timestamp.Location() != time.UTC {
		t.Fatal("timestamp must be UTC")
	}
	if _, ok := ev.Metadata["empty"]; ok || ev.Metadata["step"] != "42" {
		t.Fatalf("unexpected metadata %v", ev.Metadata)
	}

	for typ, want := range map[Type]Category{
		Signup:            CategoryAccount,
		AccountLocked:     CategoryLogin,
		BackupCodeFailed:  CategoryMFA,
		Logout:            CategorySession,
		EncryptionSaltSet: CategoryVault,
	} {
		if got := typ.Category(); got != want {
			t.Fatalf("%s: expected %s, got %s", typ, want, got)
		}
	}
}

func TestBlockingEmitHonoursContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// one event in the worker, one in the buffer
	d.Emit(context.Background(), Event{})
	d.Emit(context.Background(), Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	d.Emit(ctx, Event{})
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("expected Emit to block until the context expired")
	}

	close(sink.gate)
	d.Close()
}

func TestSinkTimeout(t *testing.T) {
	sink := &deadlineSink{hadDeadline: make(chan bool, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, SinkTimeout: time.Second}, sink)
	d.Emit(context.Background(), Event{})

	select {
	case ok := <-sink.hadDeadline:
		if !ok {
			t.Fatal("expected sink context to carry a deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	d.Close()
}

func TestCloseIdempotentAndEmitAfterClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{})
	if sink.count.Load() != 0 {
		t.Fatal("no events expected after Close")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var out syncBuffer
	sink := NewJSONWriterSink(&out)
	sink.Emit(context.Background(), Event{Type: "signup", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{Type: "login_failure", Error: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(out.buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "login_failure" || ev.Error != "invalid_credentials" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
