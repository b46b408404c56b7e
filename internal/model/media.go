package model

import (
	"path/filepath"
	"strings"
)

var extToMediaType = map[string]string{
	"m4a":  "audio/mp4",
	"mp4":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"webm": "audio/webm",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"flac": "audio/flac",
}

var mediaTypeToExt = map[string]string{
	"audio/mp4":    "m4a",
	"audio/x-m4a":  "m4a",
	"audio/m4a":    "m4a",
	"audio/mpeg":   "mp3",
	"audio/mp3":    "mp3",
	"audio/wav":    "wav",
	"audio/wave":   "wav",
	"audio/x-wav":  "wav",
	"audio/webm":   "webm",
	"audio/ogg":    "ogg",
	"audio/flac":   "flac",
	"audio/x-flac": "flac",
}

// MediaTypeForKey derives an audio MIME type from an object key's
// extension, defaulting to audio/webm for anything unrecognized.
func MediaTypeForKey(objectKey string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(objectKey), "."))
	if mt, ok := extToMediaType[ext]; ok {
		return mt
	}
	return "audio/webm"
}

// ExtensionForMediaType is the inverse mapping, used when naming the
// uploaded object and the multipart file sent to the transcriber.
func ExtensionForMediaType(mediaType string) string {
	if ext, ok := mediaTypeToExt[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return "webm"
}
