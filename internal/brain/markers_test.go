package brain

import "testing"

func TestParseMarkers(t *testing.T) {
	text, emotion, updates := parseMarkers("Très bonne réponse ! [EMOTION: enthousiasme] [ETAPE: questions]")
	if text != "Très bonne réponse !" {
		t.Fatalf("text = %q", text)
	}
	if emotion != "enthousiasme" {
		t.Fatalf("emotion = %q, want enthousiasme", emotion)
	}
	if updates["current_step"] != "questions" {
		t.Fatalf("updates = %v", updates)
	}
}

func TestParseMarkersAccentedVariant(t *testing.T) {
	_, emotion, updates := parseMarkers("D'accord. [ÉMOTION: Calme] [ÉTAPE: conclusion]")
	if emotion != "calme" {
		t.Fatalf("emotion = %q, want calme", emotion)
	}
	if updates["current_step"] != "conclusion" {
		t.Fatalf("updates = %v", updates)
	}
}

func TestParseMarkersDefaults(t *testing.T) {
	text, emotion, updates := parseMarkers("Réponse sans annotation.")
	if text != "Réponse sans annotation." {
		t.Fatalf("text = %q", text)
	}
	if emotion != "neutre" {
		t.Fatalf("emotion = %q, want neutre", emotion)
	}
	if updates != nil {
		t.Fatalf("updates = %v, want nil", updates)
	}
}

func TestParseMarkersUnclosedMarkerLeftIntact(t *testing.T) {
	text, emotion, _ := parseMarkers("Bonjour [EMOTION: joie")
	if text != "Bonjour [EMOTION: joie" {
		t.Fatalf("text = %q", text)
	}
	if emotion != "neutre" {
		t.Fatalf("emotion = %q, want neutre", emotion)
	}
}
