package stt

import (
	"context"
	"fmt"
	"time"
)

const stubDefaultRate = 16000

// StubEngine produces deterministic placeholder transcripts without a
// model. It backs dev mode and tests.
type StubEngine struct {
	rate int
}

func NewStubEngine(rate int) *StubEngine {
	if rate <= 0 {
		rate = stubDefaultRate
	}
	return &StubEngine{rate: rate}
}

func (e *StubEngine) Info() ModelInfo {
	return ModelInfo{ID: "stub"}
}

func (e *StubEngine) SampleRate() int {
	return e.rate
}

func (e *StubEngine) OpenStream(
	ctx context.Context,
	cfg StreamConfig,
) (Stream, error) {
	return &stubStream{rate: e.rate}, nil
}

func (e *StubEngine) Transcribe(
	ctx context.Context,
	samples []float32,
) (Result, error) {
	d := float64(len(samples)) / float64(e.rate)
	return Result{
		Text:     fmt.Sprintf("heard %.1f seconds of audio", d),
		Duration: d,
	}, nil
}

func (e *StubEngine) Close() error {
	return nil
}

type stubStream struct {
	rate    int
	samples int
	closed  bool
}

func (s *stubStream) Feed(samples []float32) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.samples += len(samples)
	return nil
}

func (s *stubStream) Text() string {
	if s.samples == 0 {
		return ""
	}
	d := time.Duration(s.samples) * time.Second / time.Duration(s.rate)
	return fmt.Sprintf("heard %.1f seconds of audio", d.Seconds())
}

func (s *stubStream) Finalize() (string, error) {
	if s.closed {
		return "", ErrStreamClosed
	}
	return s.Text(), nil
}

func (s *stubStream) Close() error {
	s.closed = true
	return nil
}
