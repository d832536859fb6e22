// Package audio provides file-backed capture and playback processors.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pcm "github.com/satriahrh/arunika/client/internal/audio"
)

const wavHeaderSize = 44

// ErrUnsupportedWAV is returned for anything but 16-bit mono PCM at the wire rate
var ErrUnsupportedWAV = errors.New("unsupported wav format")

// ReadWAV reads a 16-bit mono PCM WAV at the wire sample rate
func ReadWAV(r io.Reader) ([]int16, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}

	var formatSeen bool
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("failed to find data chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			numChannels := binary.LittleEndian.Uint16(body[2:4])
			sampleRate := binary.LittleEndian.Uint32(body[4:8])
			bitsPerSample := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || numChannels != 1 || bitsPerSample != 16 || sampleRate != pcm.SampleRate {
				return nil, fmt.Errorf("%w: format=%d channels=%d rate=%d bits=%d",
					ErrUnsupportedWAV, audioFormat, numChannels, sampleRate, bitsPerSample)
			}
			formatSeen = true

		case "data":
			if !formatSeen {
				return nil, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("failed to read wav data: %w", err)
			}
			// tolerate truncated files, keep whole samples only
			return pcm.DecodePCM16LE(data[:n&^1])

		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return nil, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

// WriteWAVHeader writes a 44-byte header for dataLen bytes of mono 16-bit PCM
func WriteWAVHeader(w io.Writer, dataLen uint32) error {
	const (
		channels      = 1
		bitsPerSample = 16
		blockAlign    = channels * bitsPerSample / 8
		byteRate      = pcm.SampleRate * blockAlign
	)

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], pcm.SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	_, err := w.Write(header)
	return err
}
