package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV is returned by [ReadWAV] for input without a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a wav file")

const wavHeaderSize = 44

// EncodeWAV wraps pcm in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], uint16(f.Channels))
	le.PutUint32(buf[24:28], uint32(f.SampleRate))
	le.PutUint32(buf[28:32], uint32(f.SampleRate*f.FrameBytes()))
	le.PutUint16(buf[32:34], uint16(f.FrameBytes()))
	le.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// ReadWAV decodes a 16-bit PCM WAV stream. Chunks other than "fmt " and
// "data" are skipped.
func ReadWAV(r io.Reader) (Format, []byte, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Format{}, nil, fmt.Errorf("%w: %w", ErrNotWAV, err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return Format{}, nil, fmt.Errorf("audio: wav missing data chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("audio: wav fmt chunk of %d bytes", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, nil, fmt.Errorf("audio: read wav fmt chunk: %w", err)
			}
			le := binary.LittleEndian
			if tag := le.Uint16(body[0:2]); tag != 1 {
				return Format{}, nil, fmt.Errorf("audio: unsupported wav encoding %d, want PCM", tag)
			}
			if bits := le.Uint16(body[14:16]); bits != 16 {
				return Format{}, nil, fmt.Errorf("audio: unsupported wav sample size %d bits, want 16", bits)
			}
			f = Format{Channels: int(le.Uint16(body[2:4])), SampleRate: int(le.Uint32(body[4:8]))}
			if f.Channels <= 0 || f.SampleRate <= 0 {
				return Format{}, nil, fmt.Errorf("audio: invalid wav format %s", f)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, errors.New("audio: wav data chunk before fmt chunk")
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return Format{}, nil, fmt.Errorf("audio: read wav data: %w", err)
			}
			pcm = pcm[:len(pcm)-len(pcm)%f.FrameBytes()]
			return f, pcm, nil
		default:
			// Chunks are word aligned.
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Format{}, nil, fmt.Errorf("audio: skip wav %q chunk: %w", id, err)
			}
		}
	}
}
