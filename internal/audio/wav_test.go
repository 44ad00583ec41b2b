package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	samples := []float32{0.5, -0.5, 0.25}
	buf := EncodeWAV(samples, 16000)

	if len(buf) != EncodedSize(len(samples)) {
		t.Fatalf("len = %d, want %d", len(buf), EncodedSize(len(samples)))
	}

	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if string(buf[12:16]) != "fmt " {
		t.Error("missing fmt chunk")
	}

	format := binary.LittleEndian.Uint16(buf[20:22])
	if format != 3 {
		t.Errorf("format = %d, want 3 (IEEE float)", format)
	}
	channels := binary.LittleEndian.Uint16(buf[22:24])
	if channels != 1 {
		t.Errorf("channels = %d, want 1 (mono)", channels)
	}
	rate := binary.LittleEndian.Uint32(buf[24:28])
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	bits := binary.LittleEndian.Uint16(buf[34:36])
	if bits != 32 {
		t.Errorf("bits = %d, want 32", bits)
	}

	if string(buf[36:40]) != "data" {
		t.Error("missing data chunk")
	}
	dataSize := binary.LittleEndian.Uint32(buf[40:44])
	if int(dataSize) != len(samples)*4 {
		t.Errorf("data size = %d, want %d", dataSize, len(samples)*4)
	}

	// Samples round-trip as raw little-endian float32
	first := math.Float32frombits(binary.LittleEndian.Uint32(buf[44:48]))
	if first != 0.5 {
		t.Errorf("first sample = %v, want 0.5", first)
	}
}
