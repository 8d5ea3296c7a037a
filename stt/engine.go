package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

var (
	// ErrNoModel means no recognition model is loaded at all.
	ErrNoModel = errors.New("no speech model loaded")

	// ErrStreamClosed means the streaming context was already released.
	ErrStreamClosed = errors.New("transcription stream closed")
)

// ModelInfo describes the loaded recognition model.
type ModelInfo struct {
	ID   string
	Path string
}

// Result is the outcome of a one-shot transcription.
type Result struct {
	Text     string
	Duration float64
}

// StreamConfig carries per-stream decoder settings. Context sizes are
// in encoder frames on each side of the decode position.
type StreamConfig struct {
	LeftContext  int
	RightContext int
}

// DefaultStreamConfig mirrors the decoder's usual streaming window.
var DefaultStreamConfig = StreamConfig{
	LeftContext:  256,
	RightContext: 256,
}

// Engine is a loaded speech recognition model.
type Engine interface {
	Info() ModelInfo

	// SampleRate is the PCM rate the model expects, in Hz.
	SampleRate() int

	// OpenStream allocates a streaming decode context. The caller owns
	// the returned Stream and must Close it.
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)

	// Transcribe decodes a complete utterance in one call.
	Transcribe(ctx context.Context, samples []float32) (Result, error)

	Close() error
}

// Stream is one incremental decode context. It is not safe for
// concurrent use; callers serialize access.
type Stream interface {
	// Feed appends samples to the decode window.
	Feed(samples []float32) error

	// Text is the transcript decoded so far. It does not advance the
	// decoder.
	Text() string

	// Finalize flushes the decoder and returns the complete transcript.
	Finalize() (string, error)

	// Close releases the decode context. Safe to call more than once.
	Close() error
}

// Options selects and configures an engine implementation.
type Options struct {
	// Engine is "mlx" or "stub".
	Engine string

	ModelPath string
	PythonBin string

	// SampleRate only applies to the stub engine; the MLX worker
	// reports the model's own rate.
	SampleRate int
}

// New builds the configured engine. An empty Engine option means mlx
// when a model path is set, stub otherwise.
func New(opts Options, logger *log.Logger) (Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	kind := opts.Engine
	if kind == "" {
		if opts.ModelPath != "" {
			kind = "mlx"
		} else {
			kind = "stub"
		}
	}

	switch kind {
	case "mlx":
		if opts.ModelPath == "" {
			return nil, fmt.Errorf("mlx engine: %w", ErrNoModel)
		}
		return NewMLXEngine(opts.PythonBin, opts.ModelPath, logger)
	case "stub":
		logger.Warn("using stub engine; transcripts are placeholders")
		return NewStubEngine(opts.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", kind)
	}
}
