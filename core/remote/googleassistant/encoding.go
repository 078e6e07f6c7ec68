package googleassistant

import (
	"github.com/koscakluka/ema-assistant/core/audio"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
)

func audioInEncoding(info audio.EncodingInfo) embedded.AudioInConfig_Encoding {
	switch info.Format {
	case audio.EncodingFLAC:
		return embedded.AudioInConfig_FLAC
	default:
		return embedded.AudioInConfig_LINEAR16
	}
}

func audioOutEncoding(info audio.EncodingInfo) embedded.AudioOutConfig_Encoding {
	switch info.Format {
	case audio.EncodingMP3:
		return embedded.AudioOutConfig_MP3
	case audio.EncodingOpusOgg:
		return embedded.AudioOutConfig_OPUS_IN_OGG
	default:
		return embedded.AudioOutConfig_LINEAR16
	}
}
