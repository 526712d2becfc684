package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type stubProvider struct {
	name  string
	resp  *Response
	err   error
	calls int
}

func (s *stubProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubProvider) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	primary := &stubProvider{name: "a", resp: &Response{Content: "ok"}}
	secondary := &stubProvider{name: "b", resp: &Response{Content: "backup"}}

	f := NewFallbackProvider([]Provider{primary, secondary}, discardLogger())
	resp, err := f.Generate(context.Background(), &Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected primary response, got %q", resp.Content)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary should not be called, got %d calls", secondary.calls)
	}
}

func TestFallback_PrimaryFails(t *testing.T) {
	primary := &stubProvider{name: "a", err: errors.New("down")}
	secondary := &stubProvider{name: "b", resp: &Response{Content: "backup"}}

	f := NewFallbackProvider([]Provider{primary, secondary}, discardLogger())
	resp, err := f.Generate(context.Background(), &Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("expected fallback response, got %q", resp.Content)
	}
}

func TestFallback_AllFail(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b", err: errors.New("also down")}

	f := NewFallbackProvider([]Provider{a, b}, discardLogger())
	_, err := f.Generate(context.Background(), &Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	// Every attempt is preserved in the joined error.
	if !errors.Is(err, a.err) {
		t.Errorf("expected primary error to be wrapped, got %v", err)
	}
	if !errors.Is(err, b.err) {
		t.Errorf("expected backup error to be wrapped, got %v", err)
	}
}

func TestFallback_CanceledContextStopsChain(t *testing.T) {
	primary := &stubProvider{name: "a", err: errors.New("down")}
	secondary := &stubProvider{name: "b", resp: &Response{Content: "backup"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFallbackProvider([]Provider{primary, secondary}, discardLogger())
	_, err := f.Generate(ctx, &Request{Prompt: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if primary.calls != 0 || secondary.calls != 0 {
		t.Errorf("no provider may be called after cancellation, got %d/%d calls",
			primary.calls, secondary.calls)
	}
}

func TestFallback_Name(t *testing.T) {
	f := NewFallbackProvider([]Provider{
		&stubProvider{name: "gemini"},
		&stubProvider{name: "ollama"},
	}, discardLogger())
	if f.Name() != "gemini,ollama" {
		t.Errorf("unexpected name %q", f.Name())
	}
}
