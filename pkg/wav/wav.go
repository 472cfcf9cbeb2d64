// Package wav reads and writes the minimal RIFF/WAV containers exchanged with
// the translation worker.
//
// The worker expects 16-bit signed little-endian PCM. [Encode] writes the
// 78-byte header layout the worker was trained against (RIFF, fmt, a
// LIST/INFO/ISFT software tag, data). [PCM] strips the header from a file on
// disk, accepting both the plain 44-byte layout and the 78-byte LIST variant.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BitsPerSample is fixed at 16 for signed little-endian PCM.
	BitsPerSample = 16

	// HeaderSize is the size of the header written by [Encode].
	HeaderSize = 78

	// software is the ISFT tag value, NUL-terminated and padded to 14 bytes.
	software = "Lavf58.29.100\x00"
)

// ErrNoData is returned by [PCM] when the container has no data chunk.
var ErrNoData = errors.New("wav: data chunk not found")

// Format describes the PCM layout stored in a container.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM byte rate for f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BitsPerSample / 8
}

// Encode wraps pcm in a RIFF/WAV container with a LIST/INFO chunk. All length
// fields reflect len(pcm).
func Encode(pcm []byte, f Format) []byte {
	dataSize := len(pcm)
	buf := make([]byte, HeaderSize+dataSize)
	le := binary.LittleEndian

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(HeaderSize-8+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], uint16(f.Channels))
	le.PutUint32(buf[24:28], uint32(f.SampleRate))
	le.PutUint32(buf[28:32], uint32(f.BytesPerSecond()))
	le.PutUint16(buf[32:34], uint16(f.Channels*BitsPerSample/8))
	le.PutUint16(buf[34:36], BitsPerSample)

	// LIST/INFO/ISFT
	copy(buf[36:40], "LIST")
	le.PutUint32(buf[40:44], 4+8+uint32(len(software)))
	copy(buf[44:48], "INFO")
	copy(buf[48:52], "ISFT")
	le.PutUint32(buf[52:56], uint32(len(software)))
	copy(buf[56:70], software)

	// data sub-chunk
	copy(buf[70:74], "data")
	le.PutUint32(buf[74:78], uint32(dataSize))
	copy(buf[78:], pcm)

	return buf
}

// PCM returns the payload of the data chunk of a WAV container. Chunks before
// the data chunk (fmt, LIST, ...) are skipped.
func PCM(file []byte) ([]byte, error) {
	if len(file) < 12 || !bytes.Equal(file[0:4], []byte("RIFF")) || !bytes.Equal(file[8:12], []byte("WAVE")) {
		return nil, errors.New("wav: not a RIFF/WAVE container")
	}
	pos := 12
	for pos+8 <= len(file) {
		id := string(file[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(file[pos+4 : pos+8]))
		body := pos + 8
		if id == "data" {
			end := body + size
			if end > len(file) {
				// Streamed files often carry a bogus data length.
				end = len(file)
			}
			return file[body:end], nil
		}
		if body+size > len(file) {
			return nil, fmt.Errorf("wav: chunk %q overruns file", id)
		}
		pos = body + size + size%2
	}
	return nil, ErrNoData
}
