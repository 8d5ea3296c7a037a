package snd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WAV format codes we accept.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// Audio is decoded sound: mono float32 samples at a known rate.
type Audio struct {
	SampleRate int
	Samples    []float32
}

// ReadWAV parses a PCM WAV file. 16-bit integer and 32-bit float
// encodings are supported; multi-channel audio is averaged down to
// mono.
func ReadWAV(r io.Reader) (*Audio, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}

	if len(data) < 12 ||
		!bytes.Equal(data[0:4], []byte("RIFF")) ||
		!bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, ErrNotWAV
	}

	var (
		format     uint16
		channels   uint16
		sampleRate uint32
		bits       uint16
		pcm        []byte
	)

	// Walk the chunks. Anything besides fmt and data is skipped.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = binary.LittleEndian.Uint16(data[body+2:])
			sampleRate = binary.LittleEndian.Uint32(data[body+4:])
			bits = binary.LittleEndian.Uint16(data[body+14:])
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
	}

	var samples []float32
	switch {
	case format == wavFormatPCM && bits == 16:
		samples = make([]float32, len(pcm)/2)
		for i := range samples {
			s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
			samples[i] = float32(s) / 32768.0
		}
	case format == wavFormatFloat && bits == 32:
		var err error
		samples, err = BytesToFloat32(pcm)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf(
			"unsupported wav encoding: format=%d bits=%d",
			format, bits,
		)
	}

	if channels > 1 {
		samples = mixdown(samples, int(channels))
	}

	return &Audio{
		SampleRate: int(sampleRate),
		Samples:    samples,
	}, nil
}

// WriteWAV writes mono samples as a 32-bit float WAV file.
func WriteWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataSize := len(samples) * BytesPerSample

	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36+dataSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}

	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(wavFormatFloat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate*BytesPerSample)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(BytesPerSample)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(32)); err != nil {
		return err
	}

	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(dataSize)); err != nil {
		return err
	}

	_, err := w.Write(Float32ToBytes(samples))
	return err
}

// Resample converts samples from one rate to another using linear
// interpolation. The input is returned untouched when the rates match.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(from) / float64(to)
	n := int(math.Floor(float64(len(samples)) / ratio))
	if n < 1 {
		n = 1
	}

	out := make([]float32, n)
	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := at(samples, srcIdx)
		s1 := at(samples, srcIdx+1)
		out[i] = s0 + float32(frac)*(s1-s0)
	}
	return out
}

func at(samples []float32, idx int) float32 {
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}

func mixdown(interleaved []float32, channels int) []float32 {
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
