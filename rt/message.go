package rt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/perchd/perch/snd"
)

// Wire message kinds.
const (
	kindAudio         = "audio"
	kindEnd           = "end"
	kindReady         = "ready"
	kindTranscription = "transcription"
	kindError         = "error"
	kindDone          = "done"
)

type inboundMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// decodeMessage parses one client message into the closed set of
// inbound kinds. Unrecognized kinds are an error rather than being
// dropped, so client bugs surface immediately.
func decodeMessage(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, fmt.Errorf("malformed message: %w", err)
	}

	switch msg.Type {
	case kindAudio, kindEnd:
		return msg, nil
	case "":
		return inboundMessage{}, errors.New("message has no type")
	default:
		return inboundMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// decodeAudio unpacks an audio payload: base64 over little-endian
// float32 PCM.
func decodeAudio(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("audio payload is not valid base64: %w", err)
	}

	samples, err := snd.BytesToFloat32(raw)
	if err != nil {
		return nil, fmt.Errorf("audio payload: %w", err)
	}
	return samples, nil
}

type readyEvent struct {
	Type          string `json:"type"`
	SampleRate    int    `json:"sample_rate"`
	ContextWindow [2]int `json:"context_window"`
	Message       string `json:"message"`
}

type transcriptionEvent struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type doneEvent struct {
	Type string `json:"type"`
}
