package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := EncodeWAV(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", size, len(pcm))
	}
	if string(wav[44:]) != string(pcm) {
		t.Fatal("payload mangled")
	}
}

func TestEncodeWAVDefaultsSampleRate(t *testing.T) {
	wav := EncodeWAV(nil, 0)
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d, want default 16000", rate)
	}
}
