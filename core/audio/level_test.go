package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestLevelOfSilenceIsZero(t *testing.T) {
	if got := Level(make([]byte, 320)); got != 0 {
		t.Fatalf("expected zero level for silence, got %f", got)
	}
}

func TestLevelOfFullScaleSignalIsOne(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(math.MaxInt16))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(math.MaxInt16))

	if got := Level(pcm); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected full scale level 1, got %f", got)
	}
}

func TestLevelStaysInRangeForNegativeExtreme(t *testing.T) {
	minValue := int16(math.MinInt16)
	pcm := make([]byte, 2)
	binary.LittleEndian.PutUint16(pcm, uint16(minValue))

	if got := Level(pcm); got < 0 || got > 1 {
		t.Fatalf("expected level within [0,1], got %f", got)
	}
}

func TestNewChunkCopiesBuffer(t *testing.T) {
	buffer := []byte{1, 2, 3, 4}
	chunk := NewChunk(buffer)
	buffer[0] = 9

	if chunk.Data[0] != 1 {
		t.Fatalf("expected chunk to own a copy of the captured buffer")
	}
}

func TestEncodingInfoBytesPerSecond(t *testing.T) {
	if got := GetDefaultEncodingInfo().BytesPerSecond(); got != 32000 {
		t.Fatalf("expected 32000 bytes per second for 16kHz linear16, got %d", got)
	}
	if got := (EncodingInfo{SampleRate: 24000, Format: EncodingMP3}).BytesPerSecond(); got != 0 {
		t.Fatalf("expected compressed formats to report zero, got %d", got)
	}
}
