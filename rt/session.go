// Package rt implements the realtime transcription session: one engine
// stream per connection, driven strictly sequentially by a protocol
// handler.
package rt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/perchd/perch/stt"
)

type State int

const (
	StateInitializing State = iota
	StateReady
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrFinalized = fmt.Errorf("session already finalized")

type Config struct {
	// Window is the engine context window. Zero means the engine
	// default.
	Window stt.StreamConfig

	Logger *log.Logger
}

// Session owns one engine stream for the lifetime of one connection.
// It is not safe for concurrent use: the connection's goroutine makes
// every call.
type Session struct {
	id     string
	engine stt.Engine
	stream stt.Stream
	logger *log.Logger

	state       State
	window      stt.StreamConfig
	lastEmitted string
	samples     int64
	startedAt   time.Time

	closeOnce sync.Once
	closeErr  error
}

// Open allocates an engine stream and returns a Ready session. The
// caller must Close the session on every exit path.
func Open(ctx context.Context, engine stt.Engine, cfg Config) (*Session, error) {
	if engine == nil {
		return nil, stt.ErrNoModel
	}

	window := cfg.Window
	if window == (stt.StreamConfig{}) {
		window = stt.DefaultStreamConfig
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Session{
		id:        uuid.New().String(),
		engine:    engine,
		logger:    logger,
		state:     StateInitializing,
		window:    window,
		startedAt: time.Now(),
	}

	stream, err := engine.OpenStream(ctx, window)
	if err != nil {
		s.state = StateClosed
		return nil, fmt.Errorf("open engine stream: %w", err)
	}

	s.stream = stream
	s.state = StateReady
	return s, nil
}

func (s *Session) ID() string            { return s.id }
func (s *Session) State() State          { return s.state }
func (s *Session) SampleRate() int       { return s.engine.SampleRate() }
func (s *Session) Window() stt.StreamConfig { return s.window }
func (s *Session) SampleCount() int64    { return s.samples }
func (s *Session) StartedAt() time.Time  { return s.startedAt }

// AudioDuration is how much audio the session has ingested.
func (s *Session) AudioDuration() time.Duration {
	rate := s.engine.SampleRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(s.samples) * time.Second / time.Duration(rate)
}

// Ingest feeds one chunk into the engine stream. The first chunk moves
// the session from Ready to Streaming. Calling Ingest on a session
// that is not Ready or Streaming is a bug in the caller.
func (s *Session) Ingest(samples []float32) error {
	switch s.state {
	case StateReady:
		s.state = StateStreaming
	case StateStreaming:
	default:
		panic(fmt.Sprintf("ingest on %s session", s.state))
	}

	if err := s.stream.Feed(samples); err != nil {
		return fmt.Errorf("ingest chunk: %w", err)
	}

	s.samples += int64(len(samples))
	return nil
}

// PollPartial reports the current hypothesis when it is non-empty and
// differs from the last emission. It never advances the decoder.
func (s *Session) PollPartial() (string, bool) {
	text := strings.TrimSpace(s.stream.Text())
	if text == "" || text == s.lastEmitted {
		return "", false
	}

	s.lastEmitted = text
	return text, true
}

// Finalize flushes the engine stream and returns the final transcript,
// which may be empty. It can be called once, from Ready or Streaming.
func (s *Session) Finalize() (string, error) {
	switch s.state {
	case StateReady, StateStreaming:
	default:
		return "", fmt.Errorf("finalize %s session: %w", s.state, ErrFinalized)
	}
	s.state = StateDraining

	text, err := s.stream.Finalize()
	if err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// Close releases the engine stream. Every call after the first is a
// no-op returning the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state = StateClosed
		s.closeErr = s.stream.Close()
		if s.closeErr != nil {
			s.logger.Error(
				"release engine stream",
				"session", s.id,
				"error", s.closeErr,
			)
		}
	})
	return s.closeErr
}
