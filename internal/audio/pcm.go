package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOddPCMLength is returned for PCM byte slices that do not hold whole samples
var ErrOddPCMLength = errors.New("pcm data has odd length")

// DecodePCM16LE converts little-endian 16-bit PCM bytes to samples
func DecodePCM16LE(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCMLength, len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// EncodePCM16LE converts samples to little-endian 16-bit PCM bytes
func EncodePCM16LE(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// DecodeBase64PCM decodes a standard base64 tts_chunk payload
func DecodeBase64PCM(content string) ([]int16, error) {
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return DecodePCM16LE(data)
}

// EncodeBase64PCM encodes samples the way the server sends tts_chunk content
func EncodeBase64PCM(samples []int16) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16LE(samples))
}
