// Package tts synthesizes the coach's speech.
package tts

import "context"

// Chunk is one slice of synthesized audio. A chunk with Err set is the last
// one on its stream.
type Chunk struct {
	Data []byte
	Err  error
}

// Synthesizer produces audio for a reply. Stream delivers audio as it is
// synthesized and closes the channel when the utterance is complete;
// canceling ctx abandons the stream. Synthesize blocks for the whole
// utterance, which is what cache warming needs.
type Synthesizer interface {
	Stream(ctx context.Context, text, language, voiceID, emotion string) (<-chan Chunk, error)
	Synthesize(ctx context.Context, text, language, voiceID, emotion string) ([]byte, error)
}
