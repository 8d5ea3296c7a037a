package stt

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/perchd/perch/snd"
)

//go:embed worker.py
var workerScript []byte

// Model loading pulls weights into memory, so the first reply can take
// a while on cold caches.
const workerStartTimeout = 120 * time.Second

var errWorkerGone = errors.New("mlx worker is not running")

type workerRequest struct {
	Op     string `json:"op"`
	Stream string `json:"stream,omitempty"`
	Audio  string `json:"audio,omitempty"`
	Left   int    `json:"left,omitempty"`
	Right  int    `json:"right,omitempty"`
}

type workerResponse struct {
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
	Text       string  `json:"text,omitempty"`
	Stream     string  `json:"stream,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	ModelID    string  `json:"model_id,omitempty"`
}

// MLXEngine runs the Parakeet model in a persistent Python worker and
// speaks line-delimited JSON with it over stdin/stdout. The model only
// runs under Python/MLX; this keeps one copy of the weights hot across
// every session.
type MLXEngine struct {
	info   ModelInfo
	rate   int
	logger *log.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	closed bool
}

func NewMLXEngine(
	pythonBin, modelPath string,
	logger *log.Logger,
) (*MLXEngine, error) {
	if pythonBin == "" {
		pythonBin = "python3"
	}

	scriptPath := filepath.Join(os.TempDir(), "perch_worker.py")
	if err := os.WriteFile(scriptPath, workerScript, 0o755); err != nil {
		return nil, fmt.Errorf("write worker script: %w", err)
	}

	cmd := exec.Command(pythonBin, scriptPath, "--model", modelPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mlx worker: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("worker", "stderr", scanner.Text())
		}
	}()

	e := &MLXEngine{
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		out:    bufio.NewReader(stdout),
	}

	// The worker loads the model before anything else and announces
	// the outcome as its first line.
	hello, err := e.awaitHello()
	if err != nil {
		stdin.Close()
		cmd.Process.Kill()
		cmd.Wait()
		os.Remove(scriptPath)
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	os.Remove(scriptPath)

	e.rate = hello.SampleRate
	e.info = ModelInfo{ID: hello.ModelID, Path: modelPath}

	logger.Info(
		"model loaded",
		"id", e.info.ID,
		"sample_rate", e.rate,
	)

	return e, nil
}

func (e *MLXEngine) awaitHello() (workerResponse, error) {
	type outcome struct {
		resp workerResponse
		err  error
	}

	ch := make(chan outcome, 1)
	go func() {
		resp, err := e.readResponse()
		ch <- outcome{resp, err}
	}()

	select {
	case o := <-ch:
		return o.resp, o.err
	case <-time.After(workerStartTimeout):
		return workerResponse{}, errors.New("timed out waiting for worker")
	}
}

func (e *MLXEngine) readResponse() (workerResponse, error) {
	line, err := e.out.ReadBytes('\n')
	if err != nil {
		return workerResponse{}, fmt.Errorf("read worker reply: %w", err)
	}

	var resp workerResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return workerResponse{}, fmt.Errorf("decode worker reply: %w", err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("worker: %s", resp.Error)
	}
	return resp, nil
}

// roundTrip sends one request and reads its reply. One exchange runs at
// a time; the worker answers strictly in order.
func (e *MLXEngine) roundTrip(
	ctx context.Context,
	req workerRequest,
) (workerResponse, error) {
	if err := ctx.Err(); err != nil {
		return workerResponse{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return workerResponse{}, errWorkerGone
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return workerResponse{}, fmt.Errorf("encode worker request: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := e.stdin.Write(payload); err != nil {
		return workerResponse{}, fmt.Errorf("write to worker: %w", err)
	}

	return e.readResponse()
}

func (e *MLXEngine) Info() ModelInfo {
	return e.info
}

func (e *MLXEngine) SampleRate() int {
	return e.rate
}

func (e *MLXEngine) OpenStream(
	ctx context.Context,
	cfg StreamConfig,
) (Stream, error) {
	resp, err := e.roundTrip(ctx, workerRequest{
		Op:    "open",
		Left:  cfg.LeftContext,
		Right: cfg.RightContext,
	})
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	return &mlxStream{engine: e, id: resp.Stream}, nil
}

func (e *MLXEngine) Transcribe(
	ctx context.Context,
	samples []float32,
) (Result, error) {
	resp, err := e.roundTrip(ctx, workerRequest{
		Op:    "transcribe",
		Audio: encodeSamples(samples),
	})
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: %w", err)
	}

	return Result{Text: resp.Text, Duration: resp.Duration}, nil
}

func (e *MLXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	// Ask nicely, then close stdin so the worker exits on EOF either
	// way.
	payload, _ := json.Marshal(workerRequest{Op: "shutdown"})
	e.stdin.Write(append(payload, '\n'))
	e.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("worker exit: %w", err)
		}
		return nil
	case <-time.After(5 * time.Second):
		e.cmd.Process.Kill()
		<-done
		return errors.New("worker did not exit; killed")
	}
}

type mlxStream struct {
	engine *MLXEngine
	id     string
	text   string
	closed bool
}

func (s *mlxStream) Feed(samples []float32) error {
	if s.closed {
		return ErrStreamClosed
	}

	// The feed reply carries the running transcript, so Text stays a
	// local read.
	resp, err := s.engine.roundTrip(context.Background(), workerRequest{
		Op:     "feed",
		Stream: s.id,
		Audio:  encodeSamples(samples),
	})
	if err != nil {
		return fmt.Errorf("feed stream %s: %w", s.id, err)
	}

	s.text = resp.Text
	return nil
}

func (s *mlxStream) Text() string {
	return s.text
}

func (s *mlxStream) Finalize() (string, error) {
	if s.closed {
		return "", ErrStreamClosed
	}

	resp, err := s.engine.roundTrip(context.Background(), workerRequest{
		Op:     "finalize",
		Stream: s.id,
	})
	if err != nil {
		return "", fmt.Errorf("finalize stream %s: %w", s.id, err)
	}

	s.text = resp.Text
	return resp.Text, nil
}

func (s *mlxStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	_, err := s.engine.roundTrip(context.Background(), workerRequest{
		Op:     "close",
		Stream: s.id,
	})
	if err != nil && !errors.Is(err, errWorkerGone) {
		return fmt.Errorf("close stream %s: %w", s.id, err)
	}
	return nil
}

func encodeSamples(samples []float32) string {
	return base64.StdEncoding.EncodeToString(snd.Float32ToBytes(samples))
}
