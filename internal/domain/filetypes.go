package domain

import (
	"path/filepath"
	"strings"
)

var allowedAudioExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true,
}

var allowedImageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
}

// AudioExt validates the audio filename extension and returns it without the
// leading dot.
func AudioExt(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedAudioExts[ext] {
		return "", &ValidationError{Field: "audio_file", Message: "unsupported file type, allowed: mp3, wav, flac"}
	}
	return strings.TrimPrefix(ext, "."), nil
}

// ImageExt validates the image filename extension and returns it without the
// leading dot.
func ImageExt(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExts[ext] {
		return "", &ValidationError{Field: "image_file", Message: "unsupported file type, allowed: png, jpg, jpeg"}
	}
	return strings.TrimPrefix(ext, "."), nil
}
