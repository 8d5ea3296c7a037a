package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perchd/perch/snd"
)

// Event is one message from the realtime endpoint.
type Event struct {
	Type          string `json:"type"`
	Text          string `json:"text,omitempty"`
	Final         bool   `json:"final,omitempty"`
	Message       string `json:"message,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	ContextWindow [2]int `json:"context_window,omitempty"`
}

type outboundMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// Stream is one open realtime session. Send and receive may run
// concurrently, but each side is single-caller.
type Stream struct {
	conn  *websocket.Conn
	ready Event
}

// OpenStream dials /v1/realtime and waits for the server's ready event.
func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	wsURL, err := realtimeURL(c.BaseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf(
				"dial %s: %w (status %d)",
				wsURL,
				err,
				resp.StatusCode,
			)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	var ready Event
	if err := conn.ReadJSON(&ready); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read ready event: %w", err)
	}

	switch ready.Type {
	case "ready":
	case "error":
		conn.Close()
		return nil, fmt.Errorf("server: %s", ready.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("expected ready event, got %q", ready.Type)
	}

	return &Stream{conn: conn, ready: ready}, nil
}

// SampleRate is the PCM rate the server expects, announced in the ready
// event.
func (s *Stream) SampleRate() int {
	return s.ready.SampleRate
}

func (s *Stream) SendAudio(samples []float32) error {
	return s.conn.WriteJSON(outboundMessage{
		Type: "audio",
		Data: base64.StdEncoding.EncodeToString(snd.Float32ToBytes(samples)),
	})
}

// End signals end-of-audio. The server answers with the final
// transcription followed by done.
func (s *Stream) End() error {
	return s.conn.WriteJSON(outboundMessage{Type: "end"})
}

// Next blocks for the next server event.
func (s *Stream) Next() (Event, error) {
	var event Event
	if err := s.conn.ReadJSON(&event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

// StreamResult summarizes a finished realtime session.
type StreamResult struct {
	// Text is the final transcript.
	Text string

	// Audio is how much audio was sent.
	Audio time.Duration
}

// StreamFile streams a WAV file over the realtime endpoint and returns
// the final transcript. onEvent, when non-nil, sees every transcription
// and error event as it arrives; it is called from the read goroutine.
func (c *Client) StreamFile(
	ctx context.Context,
	path string,
	chunk time.Duration,
	onEvent func(Event),
) (*StreamResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	audio, err := snd.ReadWAV(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	stream, err := c.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	samples := snd.Resample(audio.Samples, audio.SampleRate, stream.SampleRate())

	// Read concurrently so server events never back up while we send.
	var finalText string
	done := make(chan error, 1)
	go func() {
		for {
			event, err := stream.Next()
			if err != nil {
				done <- fmt.Errorf("read event: %w", err)
				return
			}
			switch event.Type {
			case "transcription":
				if event.Final {
					finalText = event.Text
				}
				if onEvent != nil {
					onEvent(event)
				}
			case "error":
				if onEvent != nil {
					onEvent(event)
				}
			case "done":
				done <- nil
				return
			}
		}
	}()

	chunkSize := int(float64(stream.SampleRate()) * chunk.Seconds())
	if chunkSize < 1 {
		chunkSize = stream.SampleRate() / 10
	}

	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := stream.SendAudio(samples[start:end]); err != nil {
			return nil, fmt.Errorf("send audio: %w", err)
		}

		select {
		case err := <-done:
			if err == nil {
				err = errors.New("stream ended before end of audio")
			}
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	if err := stream.End(); err != nil {
		return nil, fmt.Errorf("send end: %w", err)
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &StreamResult{
		Text:  finalText,
		Audio: snd.Duration(len(samples), stream.SampleRate()),
	}, nil
}

// realtimeURL maps the REST base URL onto the websocket endpoint.
func realtimeURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/v1/realtime"
	return u.String(), nil
}
