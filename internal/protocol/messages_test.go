package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseControlMessage(t *testing.T) {
	msg, err := ParseControlMessage([]byte(`{"type":"control","event":"user_interrupt_start"}`))
	if err != nil {
		t.Fatalf("ParseControlMessage() error = %v", err)
	}
	if msg.Event != EventUserInterruptStart {
		t.Fatalf("Event = %q, want %q", msg.Event, EventUserInterruptStart)
	}
	if !msg.Recognized() {
		t.Fatal("user_interrupt_start should be recognized")
	}
}

func TestParseControlMessageUnrecognizedEventIsNotAnError(t *testing.T) {
	msg, err := ParseControlMessage([]byte(`{"type":"control","event":"set_wallpaper"}`))
	if err != nil {
		t.Fatalf("ParseControlMessage() error = %v", err)
	}
	if msg.Recognized() {
		t.Fatal("set_wallpaper should not be recognized")
	}
}

func TestParseControlMessageRejectsOtherTypes(t *testing.T) {
	if _, err := ParseControlMessage([]byte(`{"type":"transcript_ia","text":"hi"}`)); err == nil {
		t.Fatal("non-control type should be rejected")
	}
	if _, err := ParseControlMessage([]byte(`not json`)); err == nil {
		t.Fatal("invalid JSON should be rejected")
	}
	if _, err := ParseControlMessage([]byte(`{"type":"control"}`)); err == nil {
		t.Fatal("missing event should be rejected")
	}
}

func TestAudioControlWireShape(t *testing.T) {
	msg := NewAudioControl(EventSessionResumed)
	msg.PauseDuration = 3.5
	msg.ReconnectCount = 2

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != "audio_control" || decoded["event"] != "session_resumed" {
		t.Fatalf("unexpected wire shape: %s", raw)
	}
	if decoded["pause_duration"] != 3.5 {
		t.Fatalf("pause_duration = %v, want 3.5", decoded["pause_duration"])
	}
}

func TestAudioControlOmitsEmptyReconnectFields(t *testing.T) {
	raw, err := json.Marshal(NewAudioControl(EventAISpeechEnd))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := decoded["pause_duration"]; ok {
		t.Fatalf("pause_duration should be omitted: %s", raw)
	}
}
