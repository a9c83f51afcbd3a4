// Package mocks provides no-op tracing for tests.
package mocks

import (
	"context"
	"sync"

	"mlaku/infras/otel"
)

type otelImpl struct{}

// NewScope implements otel.Otel.
func (o *otelImpl) NewScope(ctx context.Context, _, _ string) (context.Context, otel.Scope) {
	return ctx, NewScope()
}

// Shutdown implements otel.Otel.
func (o *otelImpl) Shutdown(_ context.Context) error {
	return nil
}

func NewOtel() otel.Otel {
	return &otelImpl{}
}

type scopeImpl struct{}

func (s *scopeImpl) AddEvent(_ string) {}

func (s *scopeImpl) End() {}

func (s *scopeImpl) SetAttribute(_ string, _ any) {}

func (s *scopeImpl) SetAttributes(_ map[string]any) {}

func (s *scopeImpl) TraceError(_ error) {}

func (s *scopeImpl) TraceIfError(_ error) {}

func NewScope() otel.Scope {
	return &scopeImpl{}
}

// Recorder is an otel.Otel whose scopes keep every traced error.
type Recorder struct {
	mu     sync.Mutex
	traced []error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewScope implements otel.Otel.
func (r *Recorder) NewScope(ctx context.Context, _, _ string) (context.Context, otel.Scope) {
	return ctx, &recordingScope{recorder: r}
}

// Shutdown implements otel.Otel.
func (r *Recorder) Shutdown(_ context.Context) error {
	return nil
}

// Errors returns the errors traced so far, in order.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.traced...)
}

func (r *Recorder) record(err error) {
	r.mu.Lock()
	r.traced = append(r.traced, err)
	r.mu.Unlock()
}

type recordingScope struct {
	scopeImpl
	recorder *Recorder
}

func (s *recordingScope) TraceError(err error) {
	s.recorder.record(err)
}

func (s *recordingScope) TraceIfError(err error) {
	if err != nil {
		s.recorder.record(err)
	}
}
