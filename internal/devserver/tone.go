package devserver

import (
	"math"

	"github.com/satriahrh/arunika/client/internal/audio"
)

// toneChunks synthesizes a sine tone and splits it into base64 tts_chunk
// payloads of chunkSamples each
func toneChunks(freq float64, samples, chunkSamples int) []string {
	pcm := make([]int16, samples)
	for i := range pcm {
		// fade in and out to avoid clicks
		env := math.Min(1, math.Min(float64(i), float64(samples-i))/240)
		pcm[i] = int16(8000 * env * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate))
	}

	var chunks []string
	for off := 0; off < len(pcm); off += chunkSamples {
		end := min(off+chunkSamples, len(pcm))
		chunks = append(chunks, audio.EncodeBase64PCM(pcm[off:end]))
	}
	return chunks
}
