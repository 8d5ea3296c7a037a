// Package client talks to a running perch server: one-shot
// transcription uploads and the realtime websocket stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

type TranscribeOptions struct {
	Model    string
	Language string
}

// Transcription is the server's answer to a one-shot upload.
type Transcription struct {
	Text     string  `json:"text"`
	Task     string  `json:"task"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// TranscribeFile uploads a WAV file and returns its transcript.
func (c *Client) TranscribeFile(
	ctx context.Context,
	path string,
	opts TranscribeOptions,
) (*Transcription, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return c.Transcribe(ctx, file, filepath.Base(path), opts)
}

// Transcribe posts audio as a multipart upload to
// /v1/audio/transcriptions.
func (c *Client) Transcribe(
	ctx context.Context,
	audio io.Reader,
	filename string,
	opts TranscribeOptions,
) (*Transcription, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, err
	}

	if opts.Model != "" {
		writer.WriteField("model", opts.Model)
	}
	if opts.Language != "" {
		writer.WriteField("language", opts.Language)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := c.BaseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var out Transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	return &out, nil
}

// Health reports the server's health endpoint.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &out, nil
}

// decodeAPIError turns a non-200 response into an error, preferring the
// server's own message when it sent an error envelope.
func decodeAPIError(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf(
			"unexpected status code: %d, failed to read response body: %w",
			resp.StatusCode,
			err,
		)
	}

	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
		return fmt.Errorf("server: %s", env.Error.Message)
	}

	return fmt.Errorf(
		"unexpected status code: %d, response body: %s",
		resp.StatusCode,
		string(data),
	)
}
