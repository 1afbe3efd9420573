// Package audio holds small PCM helpers shared by the upstream clients.
package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// EncodeWAV wraps raw mono PCM16LE bytes in a WAV container, which is what
// the transcription service expects for episode uploads.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// WriteWAV streams raw mono PCM16LE bytes to out as a WAV file.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	header := make([]byte, 0, 44)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, 36+dataSize)
	header = append(header, "WAVE"...)

	header = append(header, "fmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, audioFormat)
	header = binary.LittleEndian.AppendUint16(header, numChannels)
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, byteRate)
	header = binary.LittleEndian.AppendUint16(header, blockAlign)
	header = binary.LittleEndian.AppendUint16(header, bitsPerSample)

	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, dataSize)

	if _, err := out.Write(header); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}
