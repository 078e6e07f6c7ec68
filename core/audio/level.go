package audio

import (
	"encoding/binary"
	"math"
)

// Chunk is a single captured block of PCM audio together with its
// amplitude level.
type Chunk struct {
	Data []byte
	// Level is the RMS amplitude of the chunk normalised to [0, 1].
	Level float64
}

// NewChunk copies data so capture backends can reuse their buffers.
func NewChunk(data []byte) Chunk {
	copied := make([]byte, len(data))
	copy(copied, data)
	return Chunk{Data: copied, Level: Level(copied)}
}

// Level computes the RMS amplitude of little endian signed 16 bit PCM.
func Level(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := range samples {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		sum += sample * sample
	}

	return ClampLevel(math.Sqrt(sum / float64(samples)))
}

func ClampLevel(level float64) float64 {
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
