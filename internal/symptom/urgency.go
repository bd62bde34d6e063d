package symptom

import "strings"

type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

type Urgency struct {
	Level   UrgencyLevel `json:"level"`
	Matched []string     `json:"matched_keywords,omitempty"`
}

var (
	highUrgencyKeywords = []string{
		"severe chest pain", "heart attack", "stroke", "unconscious",
		"severe bleeding", "broken bone", "high fever", "difficulty breathing",
		"poisoning", "severe injury", "emergency", "urgent",
	}
	mediumUrgencyKeywords = []string{
		"chest pain", "severe headache", "high blood pressure",
		"persistent fever", "severe pain", "kidney stone",
	}
)

// Assess flags symptom text that should be routed to emergency care rather than a booking.
// Medium keywords are only consulted when no high keyword matched.
func Assess(text string) Urgency {
	lower := strings.ToLower(text)

	if hits := containsAny(lower, highUrgencyKeywords); len(hits) > 0 {
		return Urgency{Level: UrgencyHigh, Matched: hits}
	}
	if hits := containsAny(lower, mediumUrgencyKeywords); len(hits) > 0 {
		return Urgency{Level: UrgencyMedium, Matched: hits}
	}
	return Urgency{Level: UrgencyLow}
}

func containsAny(s string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}
