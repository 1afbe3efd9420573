// Package asr turns buffered user speech into text via the transcription
// service.
package asr

import "context"

// Result is one finished transcription.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

// Transcriber converts a complete speech episode into text. Implementations
// must honor ctx cancellation; a canceled transcription returns ctx.Err().
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (Result, error)
}
