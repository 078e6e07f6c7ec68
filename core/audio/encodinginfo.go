package audio

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"

	// DefaultPlaybackSampleRate is what the assistant service synthesises
	// responses at unless asked otherwise.
	DefaultPlaybackSampleRate = 24000
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

func GetDefaultPlaybackEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultPlaybackSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerSecond is zero for compressed formats.
func (e EncodingInfo) BytesPerSecond() int {
	if size := e.Format.ByteSize(); size > 0 {
		return e.SampleRate * size
	}
	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

// ByteSize returns the size of a single sample, -1 for compressed formats.
func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFLAC     encodingFormat = "flac"
	EncodingMP3      encodingFormat = "mp3"
	EncodingOpusOgg  encodingFormat = "opus_in_ogg"
)

// ParseFormat maps a configuration string onto a known format. Unknown
// names are returned as-is so transports can reject them with context.
func ParseFormat(name string) encodingFormat {
	return encodingFormat(name)
}
