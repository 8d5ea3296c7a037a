package client

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/perchd/perch/snd"
	"github.com/perchd/perch/stt"
	"github.com/perchd/perch/www"
)

func newTestServer(t *testing.T, engine stt.Engine) *Client {
	t.Helper()
	server := www.New(www.Config{
		Engine: engine,
		Logger: log.New(io.Discard),
	})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func writeTestWAV(t *testing.T, samples []float32, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer file.Close()
	if err := snd.WriteWAV(file, samples, rate); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	c := newTestServer(t, stt.NewStubEngine(16000))

	var wav bytes.Buffer
	if err := snd.WriteWAV(&wav, make([]float32, 16000), 16000); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	result, err := c.Transcribe(
		context.Background(),
		&wav,
		"clip.wav",
		TranscribeOptions{Language: "en"},
	)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	if result.Text == "" {
		t.Error("expected a transcript")
	}
	if result.Task != "transcribe" {
		t.Errorf("expected task transcribe, got %q", result.Task)
	}
	if result.Duration < 0.99 || result.Duration > 1.01 {
		t.Errorf("expected ~1s duration, got %f", result.Duration)
	}
}

func TestTranscribeFileMissing(t *testing.T) {
	c := newTestServer(t, stt.NewStubEngine(16000))

	_, err := c.TranscribeFile(
		context.Background(),
		filepath.Join(t.TempDir(), "missing.wav"),
		TranscribeOptions{},
	)
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestTranscribeServerError(t *testing.T) {
	c := newTestServer(t, nil)

	var wav bytes.Buffer
	if err := snd.WriteWAV(&wav, make([]float32, 100), 16000); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	_, err := c.Transcribe(context.Background(), &wav, "clip.wav", TranscribeOptions{})
	if err == nil {
		t.Fatal("expected the server error to surface")
	}
	if !strings.Contains(err.Error(), "Model not loaded") {
		t.Errorf("expected the server's message, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, stt.NewStubEngine(16000))

	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !health.ModelLoaded {
		t.Error("expected model_loaded")
	}
}

func TestOpenStream(t *testing.T) {
	c := newTestServer(t, stt.NewStubEngine(24000))

	stream, err := c.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Close()

	if stream.SampleRate() != 24000 {
		t.Errorf("expected rate 24000, got %d", stream.SampleRate())
	}

	if err := stream.SendAudio(make([]float32, 12000)); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	event, err := stream.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if event.Type != "transcription" || event.Final {
		t.Fatalf("expected a partial transcription, got %+v", event)
	}

	if err := stream.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	final, err := stream.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !final.Final {
		t.Fatalf("expected the final transcription, got %+v", final)
	}
	done, err := stream.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if done.Type != "done" {
		t.Fatalf("expected done, got %+v", done)
	}
}

func TestOpenStreamNoModel(t *testing.T) {
	c := newTestServer(t, nil)

	_, err := c.OpenStream(context.Background())
	if err == nil {
		t.Fatal("expected an error when the server has no model")
	}
	if !strings.Contains(err.Error(), "no speech model") {
		t.Errorf("expected the server's message, got %v", err)
	}
}

func TestStreamFile(t *testing.T) {
	c := newTestServer(t, stt.NewStubEngine(16000))

	// One second of audio at the engine rate, streamed in 250ms chunks.
	path := writeTestWAV(t, make([]float32, 16000), 16000)

	var (
		mu     sync.Mutex
		events []Event
	)
	result, err := c.StreamFile(
		context.Background(),
		path,
		250*time.Millisecond,
		func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	)
	if err != nil {
		t.Fatalf("stream file: %v", err)
	}

	if result.Text == "" {
		t.Error("expected a final transcript")
	}
	if result.Audio != time.Second {
		t.Errorf("expected 1s of audio, got %v", result.Audio)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("expected events via the callback")
	}
	last := events[len(events)-1]
	if !last.Final {
		t.Errorf("expected the last event to be final, got %+v", last)
	}
	if last.Text != result.Text {
		t.Errorf("final event %q, result %q", last.Text, result.Text)
	}
	for _, e := range events[:len(events)-1] {
		if e.Final {
			t.Errorf("final event before the end: %+v", e)
		}
	}
}

func TestStreamFileResamples(t *testing.T) {
	c := newTestServer(t, stt.NewStubEngine(16000))

	// 8kHz source; the client must upsample to the announced rate.
	path := writeTestWAV(t, make([]float32, 8000), 8000)

	result, err := c.StreamFile(context.Background(), path, 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("stream file: %v", err)
	}
	if result.Audio != time.Second {
		t.Errorf("expected 1s of audio after resampling, got %v", result.Audio)
	}
}

func TestRealtimeURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/v1/realtime"},
		{"https://stt.example.com", "wss://stt.example.com/v1/realtime"},
		{"http://stt.example.com/api/", "ws://stt.example.com/api/v1/realtime"},
		{"ws://localhost:8000", "ws://localhost:8000/v1/realtime"},
	}
	for _, tc := range cases {
		got, err := realtimeURL(tc.base)
		if err != nil {
			t.Errorf("%s: %v", tc.base, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.base, tc.want, got)
		}
	}

	if _, err := realtimeURL("ftp://example.com"); err == nil {
		t.Error("expected an error for an unsupported scheme")
	}
}
