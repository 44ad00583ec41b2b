package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// wavHeaderSize is the byte length of the RIFF + fmt + data headers for the
// containers this package writes (no extension chunk).
const wavHeaderSize = 44

// EncodeWAV wraps mono float32 samples in a RIFF/WAVE container with an
// IEEE-float fmt chunk, as expected by the voice classifier.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 32
		formatIEEE    = 3
	)

	dataSize := len(samples) * 4
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(formatIEEE))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	// data chunk
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, math.Float32bits(s))
	}

	return buf.Bytes()
}

// EncodedSize returns the container size for a given sample count without
// performing the encode. Used for chunk metadata.
func EncodedSize(sampleCount int) int {
	return wavHeaderSize + sampleCount*4
}
