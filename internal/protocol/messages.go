package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies JSON payload variants on the session websocket.
// Binary frames carry raw audio and have no envelope.
type MessageType string

const (
	TypeControl      MessageType = "control"
	TypeAudioControl MessageType = "audio_control"
	TypeTranscript   MessageType = "transcript_ia"
	TypeError        MessageType = "error"
)

// ControlEvent names an inbound client control event.
type ControlEvent string

const (
	EventUserInterruptStart ControlEvent = "user_interrupt_start"
	EventUserSpeechEnd      ControlEvent = "user_speech_end"
)

// AudioControlEvent names an outbound playback control event.
type AudioControlEvent string

const (
	EventAISpeechStart  AudioControlEvent = "ai_speech_start"
	EventAISpeechEnd    AudioControlEvent = "ai_speech_end"
	EventGentlePrompt   AudioControlEvent = "gentle_prompt"
	EventSessionResumed AudioControlEvent = "session_resumed"
)

var ErrNotControl = errors.New("not a control message")

// ControlMessage is the only inbound text payload the gateway accepts.
type ControlMessage struct {
	Type  MessageType  `json:"type"`
	Event ControlEvent `json:"event"`
}

// Recognized reports whether the event is one the orchestrator acts on.
// Unrecognized events are logged and dropped; they never close the socket.
func (m ControlMessage) Recognized() bool {
	switch m.Event {
	case EventUserInterruptStart, EventUserSpeechEnd:
		return true
	default:
		return false
	}
}

// ParseControlMessage decodes an inbound text frame.
func ParseControlMessage(raw []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("invalid control payload: %w", err)
	}
	if msg.Type != TypeControl {
		return ControlMessage{}, ErrNotControl
	}
	if msg.Event == "" {
		return ControlMessage{}, errors.New("control message missing event")
	}
	return msg, nil
}

// AudioControl tells the client about the agent's playback state.
type AudioControl struct {
	Type           MessageType       `json:"type"`
	Event          AudioControlEvent `json:"event"`
	PauseDuration  float64           `json:"pause_duration,omitempty"`
	ReconnectCount int               `json:"reconnect_count,omitempty"`
}

func NewAudioControl(event AudioControlEvent) AudioControl {
	return AudioControl{Type: TypeAudioControl, Event: event}
}

// Transcript carries the agent's response text, sent before its audio.
type Transcript struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	Emotion string      `json:"emotion,omitempty"`
}

func NewTranscript(text, emotion string) Transcript {
	return Transcript{Type: TypeTranscript, Text: text, Emotion: emotion}
}

// ErrorEvent is the single generic error surface for upstream failures.
type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

func NewError(code, message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Code: code, Message: message}
}
