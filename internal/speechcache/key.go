package speechcache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const keyPrefix = "speech_cache"

// longTextThreshold is the normalized length above which the raw text is too
// unwieldy to embed in a Redis key and gets digested instead.
const longTextThreshold = 100

// Key derives the deterministic cache key for one synthesis request. Texts
// that differ only in case or surrounding whitespace share a key; language,
// voice, and emotion each get their own slot.
func Key(text, language, voiceID, emotion string) string {
	normalized := normalizeText(text)

	textPart := normalized
	if len(normalized) > longTextThreshold {
		sum := md5.Sum([]byte(normalized))
		textPart = normalized[:20] + hex.EncodeToString(sum[:])
	}

	return strings.Join([]string{keyPrefix, textPart, language, voiceID, emotion}, ":")
}

func metaKey(key string) string { return key + ":meta" }

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
