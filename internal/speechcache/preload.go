package speechcache

import (
	"context"
	"log"

	"golang.org/x/time/rate"
)

// SynthesizeFunc produces audio for one phrase. Preload takes a function
// rather than the full synthesizer so warming jobs can wrap it with their
// own provider selection.
type SynthesizeFunc func(ctx context.Context, text, language, voiceID, emotion string) ([]byte, error)

// PreloadItem is one phrase to warm.
type PreloadItem struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	VoiceID  string `json:"voice_id"`
	Emotion  string `json:"emotion"`
}

// PreloadResult reports what a warming run did.
type PreloadResult struct {
	AlreadyCached int `json:"already_cached"`
	NewlyCached   int `json:"newly_cached"`
	Failed        int `json:"failed"`
}

// Preload synthesizes and stores every item that is not already cached,
// throttled so a large warm list cannot saturate the synthesis provider.
// It runs items sequentially and stops early only if ctx is canceled.
func (c *Cache) Preload(ctx context.Context, items []PreloadItem, synth SynthesizeFunc, perSecond float64) (PreloadResult, error) {
	if perSecond <= 0 {
		perSecond = 5
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	var res PreloadResult
	for _, item := range items {
		cached, err := c.Exists(ctx, item.Text, item.Language, item.VoiceID, item.Emotion)
		if err != nil {
			return res, err
		}
		if cached {
			res.AlreadyCached++
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}

		audio, err := synth(ctx, item.Text, item.Language, item.VoiceID, item.Emotion)
		if err != nil {
			log.Printf("[speechcache] preload synth %q: %v", item.Text, err)
			res.Failed++
			continue
		}
		if err := c.Set(ctx, item.Text, item.Language, item.VoiceID, item.Emotion, audio); err != nil {
			log.Printf("[speechcache] preload store %q: %v", item.Text, err)
			res.Failed++
			continue
		}
		res.NewlyCached++
	}
	return res, nil
}
