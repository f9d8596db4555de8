// Package text scores messages for coercion and control indicators.
//
// Scoring is additive over three channels: coercion keywords, control
// regexes, and a small negative-sentiment lexicon, with a multiplier
// for message types that carry more weight (a live call over a single
// SMS). High-scoring message text is preserved as evidence by the
// handler, never by the analyzer itself.
package text

import (
	"math"
	"regexp"
	"strings"
)

// Message types accepted on the wire.
const (
	MessageTypeSMS         = "sms"
	MessageTypeCall        = "call"
	MessageTypeChat        = "chat"
	MessageTypeRepeatedSMS = "repeated_sms"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeSMS, MessageTypeCall, MessageTypeChat, MessageTypeRepeatedSMS:
		return true
	}
	return false
}

// EvidenceThreshold is the score above which the original message text
// is preserved as evidence.
const EvidenceThreshold = 0.7

var coercionKeywords = []string{
	"dont tell anyone", "keep this secret", "between us", "dont go",
	"stay with me", "you have to", "you must", "or else",
	"threat", "hurt", "family", "consequences",
}

var controlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`where are you`),
	regexp.MustCompile(`who are you with`),
	regexp.MustCompile(`come back now`),
	regexp.MustCompile(`you better`),
	regexp.MustCompile(`if you dont`),
	regexp.MustCompile(`i know where you live`),
	regexp.MustCompile(`watching you`),
}

var threatPhrases = []string{
	"physical harm", "hurt you", "find you", "follow you", "watch you",
}

var negativeLexicon = map[string]bool{
	"afraid": true, "alone": true, "angry": true, "cry": true,
	"danger": true, "die": true, "fear": true, "hate": true,
	"hurt": true, "kill": true, "pain": true, "scared": true,
	"terrified": true, "threat": true, "trapped": true, "worthless": true,
}

// Result is the per-message analysis breakdown.
type Result struct {
	Score           float64 `json:"score"`
	CoercionMatches int     `json:"coercion_matches"`
	ControlMatches  int     `json:"control_matches"`
	Sentiment       float64 `json:"sentiment"`
	MessageType     string  `json:"message_type"`
	TextLength      int     `json:"text_length"`
}

// Analyze scores one message. An empty or whitespace-only message
// scores zero.
func Analyze(message, messageType string) Result {
	res := Result{MessageType: messageType, TextLength: len(message)}
	if strings.TrimSpace(message) == "" {
		return res
	}
	lower := strings.ToLower(message)

	score := 0.0
	for _, kw := range coercionKeywords {
		if strings.Contains(lower, kw) {
			res.CoercionMatches++
		}
	}
	score += math.Min(float64(res.CoercionMatches)*0.2, 0.6)

	for _, re := range controlPatterns {
		if re.MatchString(lower) {
			res.ControlMatches++
		}
	}
	score += math.Min(float64(res.ControlMatches)*0.3, 0.7)

	res.Sentiment = lexiconScore(lower)
	score += res.Sentiment * 0.4

	switch messageType {
	case MessageTypeCall:
		score *= 1.2
	case MessageTypeRepeatedSMS:
		score *= 1.1
	}

	res.Score = round3(math.Min(score, 1.0))
	return res
}

// lexiconScore combines negative sentiment with threatening-phrase
// matches into a single [0,1] value.
func lexiconScore(lower string) float64 {
	score := Sentiment(lower) * 0.5

	phraseMatches := 0
	for _, p := range threatPhrases {
		if strings.Contains(lower, p) {
			phraseMatches++
		}
	}
	score += math.Min(float64(phraseMatches)*0.3, 0.6)

	return math.Min(score, 1.0)
}

// Sentiment returns the negative-sentiment intensity of s in [0,1]
// based on the lexicon. Each distinct hit adds 0.25.
func Sentiment(s string) float64 {
	hits := 0
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if negativeLexicon[w] && !seen[w] {
			seen[w] = true
			hits++
		}
	}
	return math.Min(float64(hits)*0.25, 1.0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
