package snd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the width of one little-endian float32 PCM sample.
const BytesPerSample = 4

var ErrOddSampleBytes = errors.New(
	"pcm buffer is not a whole number of float32 samples",
)

// BytesToFloat32 decodes little-endian float32 PCM into samples.
func BytesToFloat32(data []byte) ([]float32, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf(
			"%w: %d bytes",
			ErrOddSampleBytes,
			len(data),
		)
	}

	samples := make([]float32, len(data)/BytesPerSample)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*BytesPerSample:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// Float32ToBytes encodes samples as little-endian float32 PCM.
func Float32ToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(
			data[i*BytesPerSample:],
			math.Float32bits(s),
		)
	}
	return data
}

// Duration reports how long a sample count plays at the given rate.
func Duration(sampleCount, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(sampleCount) * time.Second /
		time.Duration(sampleRate)
}
