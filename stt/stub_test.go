package stt

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func TestStubStreamAccumulates(t *testing.T) {
	engine := NewStubEngine(16000)

	stream, err := engine.OpenStream(context.Background(), DefaultStreamConfig)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer stream.Close()

	if text := stream.Text(); text != "" {
		t.Errorf("expected empty text before audio, got %q", text)
	}

	if err := stream.Feed(make([]float32, 8000)); err != nil {
		t.Fatalf("failed to feed: %v", err)
	}
	first := stream.Text()
	if first == "" {
		t.Fatal("expected text after feeding audio")
	}

	if err := stream.Feed(make([]float32, 8000)); err != nil {
		t.Fatalf("failed to feed: %v", err)
	}
	second := stream.Text()
	if second == first {
		t.Errorf("expected text to change after more audio, still %q", second)
	}

	final, err := stream.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}
	if final != second {
		t.Errorf("expected final %q to match current text %q", final, second)
	}
}

func TestStubStreamClosed(t *testing.T) {
	engine := NewStubEngine(16000)

	stream, _ := engine.OpenStream(context.Background(), DefaultStreamConfig)
	if err := stream.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	if err := stream.Feed(make([]float32, 10)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
	if _, err := stream.Finalize(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestStubTranscribe(t *testing.T) {
	engine := NewStubEngine(16000)

	result, err := engine.Transcribe(context.Background(), make([]float32, 32000))
	if err != nil {
		t.Fatalf("failed to transcribe: %v", err)
	}
	if result.Text == "" {
		t.Error("expected placeholder text")
	}
	if result.Duration != 2.0 {
		t.Errorf("expected duration 2.0, got %v", result.Duration)
	}
}

func TestNewEngineSelection(t *testing.T) {
	logger := log.New(io.Discard)

	engine, err := New(Options{Engine: "stub", SampleRate: 8000}, logger)
	if err != nil {
		t.Fatalf("failed to build stub engine: %v", err)
	}
	if _, ok := engine.(*StubEngine); !ok {
		t.Errorf("expected *StubEngine, got %T", engine)
	}
	if engine.SampleRate() != 8000 {
		t.Errorf("expected rate 8000, got %d", engine.SampleRate())
	}

	if _, err := New(Options{Engine: "mlx"}, logger); !errors.Is(err, ErrNoModel) {
		t.Errorf("expected ErrNoModel for mlx without a model path, got %v", err)
	}

	if _, err := New(Options{Engine: "whisper"}, logger); err == nil {
		t.Error("expected error for unknown engine kind")
	}
}
