package brain

import "strings"

const defaultEmotion = "neutre"

var emotionMarkers = []string{"[EMOTION:", "[ÉMOTION:"}
var stepMarkers = []string{"[ETAPE:", "[ÉTAPE:"}

// parseMarkers extracts the inline annotations the model is prompted to emit
// and returns the reply with them stripped. Missing markers default to a
// neutral emotion and no scenario change.
func parseMarkers(raw string) (text, emotion string, updates map[string]string) {
	emotion = defaultEmotion

	text, value := extractMarker(raw, emotionMarkers)
	if value != "" {
		emotion = strings.ToLower(value)
	}

	text, value = extractMarker(text, stepMarkers)
	if value != "" {
		updates = map[string]string{"current_step": value}
	}

	return strings.TrimSpace(text), emotion, updates
}

func extractMarker(s string, markers []string) (stripped, value string) {
	for _, marker := range markers {
		start := strings.Index(s, marker)
		if start < 0 {
			continue
		}
		end := strings.Index(s[start:], "]")
		if end < 0 {
			continue
		}
		end += start
		value = strings.TrimSpace(s[start+len(marker) : end])
		return s[:start] + s[end+1:], value
	}
	return s, ""
}
