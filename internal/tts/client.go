package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// streamChunkSize is how much synthesized audio is forwarded per channel
// send. Roughly 128 ms of PCM16 at 16 kHz.
const streamChunkSize = 4096

type synthesisRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	VoiceID  string `json:"voice_id"`
	Emotion  string `json:"emotion,omitempty"`
}

// Client calls the synthesis service over HTTP. The service answers with the
// raw audio body, chunked, so playback can start before synthesis finishes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	// The client timeout would cut long streams short; per-request
	// deadlines come from ctx instead. Timeout guards the dial and
	// response headers via the transport defaults.
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
	}
}

func (c *Client) Stream(ctx context.Context, text, language, voiceID, emotion string) (<-chan Chunk, error) {
	resp, err := c.post(ctx, text, language, voiceID, emotion)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for {
			buf := make([]byte, streamChunkSize)
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 {
				select {
				case out <- Chunk{Data: buf[:n]}:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				select {
				case out <- Chunk{Err: fmt.Errorf("tts stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) Synthesize(ctx context.Context, text, language, voiceID, emotion string) ([]byte, error) {
	resp, err := c.post(ctx, text, language, voiceID, emotion)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, text, language, voiceID, emotion string) (*http.Response, error) {
	payload, err := json.Marshal(synthesisRequest{
		Text:     text,
		Language: language,
		VoiceID:  voiceID,
		Emotion:  emotion,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		return nil, fmt.Errorf("tts status %d: %s", resp.StatusCode, snippet)
	}
	return resp, nil
}
