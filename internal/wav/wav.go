// Package wav encodes mono 32-bit float PCM samples as WAV, and appends
// further samples to an existing file on disk.
//
// Adapted from the teacher project's hand-rolled WAV header writers
// (internal/asr/client.go's pcm16ToWav, internal/session/recording.go's
// pcmToWav), generalized from 16-bit integer samples to the 32-bit float
// format this spec's wire protocol uses.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	headerSize       = 44
	bitsPerSample    = 32
	channels         = 1
	formatIEEEFloat  = 3 // WAVE_FORMAT_IEEE_FLOAT
	bytesPerSample32 = 4
)

// Encode returns a complete WAV file containing samples at sampleRate,
// mono, 32-bit IEEE float.
func Encode(samples []float32, sampleRate int) []byte {
	var buf bytes.Buffer
	dataSize := len(samples) * bytesPerSample32
	byteRate := sampleRate * channels * bytesPerSample32
	blockAlign := channels * bytesPerSample32

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(formatIEEEFloat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// AppendToFile writes samples to filename, creating a new WAV file (with
// header) if it doesn't exist yet, or appending raw sample data and fixing
// up the RIFF/data chunk sizes if it does. Mirrors the create-or-append
// behavior the original session persistence relies on (one WAV file grows
// across many chunk cuts for the life of a session).
func AppendToFile(filename string, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			return createFile(filename, samples, sampleRate)
		}
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return createFile(filename, samples, sampleRate)
	}
	return appendFile(filename, samples)
}

func createFile(filename string, samples []float32, sampleRate int) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()
	_, err = f.Write(Encode(samples, sampleRate))
	return err
}

func appendFile(filename string, samples []float32) error {
	f, err := os.OpenFile(filename, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open wav file for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat wav file: %w", err)
	}
	priorSize := info.Size()
	if priorSize < headerSize {
		return fmt.Errorf("wav file %s too short to append to (%d bytes)", filename, priorSize)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end of wav file: %w", err)
	}
	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, samples)
	if _, err := f.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("append wav samples: %w", err)
	}

	addedBytes := int64(payload.Len())
	newRIFFSize := uint32(priorSize - 8 + addedBytes)
	newDataSize := uint32(priorSize - headerSize + addedBytes)

	if _, err := f.WriteAt(leUint32(newRIFFSize), 4); err != nil {
		return fmt.Errorf("patch riff chunk size: %w", err)
	}
	if _, err := f.WriteAt(leUint32(newDataSize), 40); err != nil {
		return fmt.Errorf("patch data chunk size: %w", err)
	}
	return nil
}

func leUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
