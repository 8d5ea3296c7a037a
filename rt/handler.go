package rt

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/perchd/perch/stt"
)

// Conn is the slice of a bidirectional connection the handler drives.
// Websocket connections satisfy it through a thin adapter.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
}

const readyMessage = "Ready to receive audio. " +
	"Send chunks as base64-encoded float32 PCM."

// Handler terminates one streaming connection at a time against an
// injected engine. It holds no per-connection state; Serve owns all of
// that, so one Handler can serve many connections concurrently.
type Handler struct {
	engine stt.Engine
	window stt.StreamConfig
	logger *log.Logger
}

func NewHandler(
	engine stt.Engine,
	window stt.StreamConfig,
	logger *log.Logger,
) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		engine: engine,
		window: window,
		logger: logger,
	}
}

// Summary describes a finished session for logging and persistence.
// Completed reports whether the session reached the done event.
type Summary struct {
	ID          string
	Text        string
	SampleCount int64
	StartedAt   time.Time
	Duration    time.Duration
	Completed   bool
}

// Serve drives one connection to completion: announce readiness, relay
// audio into the session, emit partials, and finish on end-of-stream.
// The engine stream is released on every exit path. The returned
// Summary is valid even when err is non-nil.
func (h *Handler) Serve(ctx context.Context, conn Conn) (Summary, error) {
	session, err := Open(ctx, h.engine, Config{
		Window: h.window,
		Logger: h.logger,
	})
	if err != nil {
		// One error event, then nothing more on this connection.
		h.logger.Error("open session", "error", err)
		if werr := conn.WriteJSON(errorEvent{
			Type:    kindError,
			Message: err.Error(),
		}); werr != nil {
			h.logger.Debug("write error event", "error", werr)
		}
		return Summary{}, err
	}
	defer session.Close()

	h.logger.Info(
		"session open",
		"id", session.ID(),
		"sample_rate", session.SampleRate(),
	)

	err = conn.WriteJSON(readyEvent{
		Type:       kindReady,
		SampleRate: session.SampleRate(),
		ContextWindow: [2]int{
			session.Window().LeftContext,
			session.Window().RightContext,
		},
		Message: readyMessage,
	})
	if err != nil {
		return h.summary(session, "", false),
			fmt.Errorf("write ready event: %w", err)
	}

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			// Disconnect. Tear down without writing anything else.
			return h.summary(session, "", false),
				fmt.Errorf("read message: %w", err)
		}

		msg, err := decodeMessage(raw)
		if err != nil {
			if werr := h.sendError(conn, err); werr != nil {
				return h.summary(session, "", false), werr
			}
			continue
		}

		switch msg.Type {
		case kindAudio:
			if err := h.handleAudio(session, conn, msg.Data); err != nil {
				return h.summary(session, "", false), err
			}

		case kindEnd:
			return h.finish(session, conn)
		}
	}
}

// handleAudio processes one chunk. Decode and engine rejections are
// reported to the client and the session keeps going; only transport
// failures return an error.
func (h *Handler) handleAudio(
	session *Session,
	conn Conn,
	data string,
) error {
	samples, err := decodeAudio(data)
	if err != nil {
		h.logger.Warn(
			"bad audio chunk",
			"session", session.ID(),
			"error", err,
		)
		return h.sendError(conn, err)
	}

	if err := session.Ingest(samples); err != nil {
		h.logger.Warn(
			"chunk rejected",
			"session", session.ID(),
			"error", err,
		)
		return h.sendError(conn, err)
	}

	if text, ok := session.PollPartial(); ok {
		err := conn.WriteJSON(transcriptionEvent{
			Type:  kindTranscription,
			Text:  text,
			Final: false,
		})
		if err != nil {
			return fmt.Errorf("write partial transcription: %w", err)
		}
	}

	return nil
}

// finish finalizes the session and emits the closing pair of events.
// The final transcription is always sent, even when its text is empty.
func (h *Handler) finish(session *Session, conn Conn) (Summary, error) {
	text, err := session.Finalize()
	if err != nil {
		h.logger.Error(
			"finalize session",
			"id", session.ID(),
			"error", err,
		)
		if werr := h.sendError(conn, err); werr != nil {
			return h.summary(session, "", false), werr
		}
		return h.summary(session, "", false), err
	}

	err = conn.WriteJSON(transcriptionEvent{
		Type:  kindTranscription,
		Text:  text,
		Final: true,
	})
	if err != nil {
		return h.summary(session, text, false),
			fmt.Errorf("write final transcription: %w", err)
	}

	if err := conn.WriteJSON(doneEvent{Type: kindDone}); err != nil {
		return h.summary(session, text, false),
			fmt.Errorf("write done event: %w", err)
	}

	h.logger.Info(
		"session done",
		"id", session.ID(),
		"audio", session.AudioDuration(),
		"chars", len(text),
	)

	return h.summary(session, text, true), nil
}

func (h *Handler) sendError(conn Conn, cause error) error {
	err := conn.WriteJSON(errorEvent{
		Type:    kindError,
		Message: cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("write error event: %w", err)
	}
	return nil
}

func (h *Handler) summary(
	s *Session,
	text string,
	completed bool,
) Summary {
	return Summary{
		ID:          s.ID(),
		Text:        text,
		SampleCount: s.SampleCount(),
		StartedAt:   s.StartedAt(),
		Duration:    s.AudioDuration(),
		Completed:   completed,
	}
}
