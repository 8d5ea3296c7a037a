package stt

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

// scriptedWorker stands in for the Python process: it reads requests
// from the engine and answers through the handler.
func scriptedWorker(
	t *testing.T,
	handler func(req workerRequest) workerResponse,
) *MLXEngine {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	engine := &MLXEngine{
		logger: log.New(io.Discard),
		rate:   16000,
		info:   ModelInfo{ID: "test-model", Path: "/models/test"},
		stdin:  reqW,
		out:    bufio.NewReader(respR),
	}

	go func() {
		dec := json.NewDecoder(reqR)
		enc := json.NewEncoder(respW)
		for {
			var req workerRequest
			if err := dec.Decode(&req); err != nil {
				respW.Close()
				return
			}
			if err := enc.Encode(handler(req)); err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		reqW.Close()
	})

	return engine
}

func TestMLXStreamRoundTrips(t *testing.T) {
	var fedBytes int
	var closeCalls int

	engine := scriptedWorker(t, func(req workerRequest) workerResponse {
		switch req.Op {
		case "open":
			if req.Left != 256 || req.Right != 256 {
				t.Errorf("unexpected context window: %d/%d", req.Left, req.Right)
			}
			return workerResponse{OK: true, Stream: "7"}
		case "feed":
			if req.Stream != "7" {
				t.Errorf("feed addressed stream %q", req.Stream)
			}
			raw, err := base64.StdEncoding.DecodeString(req.Audio)
			if err != nil {
				t.Errorf("feed carried invalid base64: %v", err)
			}
			fedBytes += len(raw)
			return workerResponse{
				OK:   true,
				Text: fmt.Sprintf("heard %d bytes", fedBytes),
			}
		case "finalize":
			return workerResponse{OK: true, Text: "the final text"}
		case "close":
			closeCalls++
			return workerResponse{OK: true}
		}
		return workerResponse{OK: false, Error: "unexpected op " + req.Op}
	})

	stream, err := engine.OpenStream(context.Background(), DefaultStreamConfig)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}

	if err := stream.Feed(make([]float32, 100)); err != nil {
		t.Fatalf("failed to feed: %v", err)
	}
	if fedBytes != 400 {
		t.Errorf("expected 400 bytes on the wire, got %d", fedBytes)
	}
	if text := stream.Text(); text != "heard 400 bytes" {
		t.Errorf("unexpected running text %q", text)
	}

	final, err := stream.Finalize()
	if err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}
	if final != "the final text" {
		t.Errorf("unexpected final text %q", final)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if closeCalls != 1 {
		t.Errorf("expected exactly one close op, got %d", closeCalls)
	}
}

func TestMLXWorkerErrorIsChunkScoped(t *testing.T) {
	var calls int

	engine := scriptedWorker(t, func(req workerRequest) workerResponse {
		switch req.Op {
		case "open":
			return workerResponse{OK: true, Stream: "0"}
		case "feed":
			calls++
			if calls == 1 {
				return workerResponse{OK: false, Error: "decoder choked"}
			}
			return workerResponse{OK: true, Text: "recovered"}
		}
		return workerResponse{OK: false, Error: "unexpected op"}
	})

	stream, err := engine.OpenStream(context.Background(), DefaultStreamConfig)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}

	err = stream.Feed(make([]float32, 10))
	if err == nil || !strings.Contains(err.Error(), "decoder choked") {
		t.Fatalf("expected worker error, got %v", err)
	}

	// The stream survives a rejected chunk.
	if err := stream.Feed(make([]float32, 10)); err != nil {
		t.Fatalf("stream should accept audio after a bad chunk: %v", err)
	}
	if text := stream.Text(); text != "recovered" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestMLXTranscribe(t *testing.T) {
	engine := scriptedWorker(t, func(req workerRequest) workerResponse {
		if req.Op != "transcribe" {
			return workerResponse{OK: false, Error: "unexpected op"}
		}
		raw, _ := base64.StdEncoding.DecodeString(req.Audio)
		return workerResponse{
			OK:       true,
			Text:     "hello world",
			Duration: float64(len(raw)/4) / 16000.0,
		}
	})

	result, err := engine.Transcribe(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("failed to transcribe: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if result.Duration != 1.0 {
		t.Errorf("expected duration 1.0, got %v", result.Duration)
	}
}

func TestMLXClosedEngineRejectsWork(t *testing.T) {
	engine := scriptedWorker(t, func(req workerRequest) workerResponse {
		return workerResponse{OK: true, Stream: "0"}
	})

	stream, err := engine.OpenStream(context.Background(), DefaultStreamConfig)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}

	engine.closed = true

	if err := stream.Feed(make([]float32, 10)); err == nil {
		t.Error("expected an error feeding through a closed engine")
	}
	// Releasing a stream after the worker is gone is not an error.
	if err := stream.Close(); err != nil {
		t.Errorf("close after worker exit should be silent, got %v", err)
	}
}
