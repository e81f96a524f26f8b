package audio

import (
	"bytes"
	"fmt"
	"os"
)

// ReadFile loads path as speech audio in format target. WAV files are
// decoded from their header; anything else is taken as headerless PCM in
// format raw.
func ReadFile(path string, raw, target Format) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		return Convert(data[:len(data)-len(data)%raw.FrameBytes()], raw, target), nil
	}
	f, pcm, err := ReadWAV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("audio: %s: %w", path, err)
	}
	return Convert(pcm, f, target), nil
}
