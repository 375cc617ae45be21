package transcription

import (
	"bytes"
	"net/http"
	"strings"
)

// Browser MediaRecorder output; used when the content is not recognised
const (
	defaultAudioName = "audio.webm"
	defaultAudioType = "audio/webm"
)

// AudioFile names an audio blob after its sniffed container so the
// vendor decodes it with the right demuxer.
func AudioFile(audio []byte) (name, contentType string) {
	if bytes.HasPrefix(audio, []byte("fLaC")) {
		return "audio.flac", "audio/flac"
	}

	sniffed, _, _ := strings.Cut(http.DetectContentType(audio), ";")
	switch sniffed {
	case "audio/wave":
		return "audio.wav", "audio/wav"
	case "audio/mpeg":
		return "audio.mp3", "audio/mpeg"
	case "application/ogg", "audio/ogg":
		return "audio.ogg", "audio/ogg"
	case "video/mp4", "audio/mp4":
		return "audio.m4a", "audio/mp4"
	case "audio/aiff":
		return "audio.aiff", "audio/aiff"
	default:
		return defaultAudioName, defaultAudioType
	}
}
