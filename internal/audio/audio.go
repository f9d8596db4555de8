// Package audio scores microphone captures for distress indicators.
//
// Two inputs combine into one score: the transcript (keyword, phrase,
// and sentiment matching, weighted 0.7) and the raw PCM samples
// (energy and zero-crossing rate, weighted 0.3). High energy together
// with a high crossing rate reads as shouting even when the
// transcript carries nothing.
package audio

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/kavachapp/kavach/internal/text"
)

var threatKeywords = []string{
	"help", "stop", "no", "dont", "leave me alone", "get away",
	"call police", "emergency", "danger", "scared", "hurt",
}

var distressPhrases = []string{
	"please stop", "i said no", "help me", "somebody help",
	"call 911", "get off me", "leave me alone",
}

// Transcript and feature weights.
const (
	transcriptWeight = 0.7
	featureWeight    = 0.3
)

// Result is the per-capture analysis breakdown.
type Result struct {
	Score          float64 `json:"score"`
	TextScore      float64 `json:"text_score"`
	FeatureScore   float64 `json:"feature_score"`
	KeywordMatches int     `json:"keyword_matches"`
	PhraseMatches  int     `json:"phrase_matches"`
	Samples        int     `json:"samples"`
}

// Analyze scores one capture. transcript may be empty when speech
// recognition produced nothing; pcm holds 16-bit little-endian mono
// samples and may be nil.
func Analyze(transcript string, pcm []byte) Result {
	res := Result{Samples: len(pcm) / 2}
	res.TextScore = transcriptScore(transcript, &res)
	res.FeatureScore = featureScore(pcm)
	res.Score = round3(math.Min(res.TextScore*transcriptWeight+res.FeatureScore*featureWeight, 1.0))
	return res
}

// transcriptScore matches the transcript against threat keywords,
// distress phrases, and the negative-sentiment lexicon.
func transcriptScore(transcript string, res *Result) float64 {
	if strings.TrimSpace(transcript) == "" {
		return 0.0
	}
	lower := strings.ToLower(transcript)

	for _, kw := range threatKeywords {
		if strings.Contains(lower, kw) {
			res.KeywordMatches++
		}
	}
	score := math.Min(float64(res.KeywordMatches)*0.3, 0.6)

	for _, p := range distressPhrases {
		if strings.Contains(lower, p) {
			res.PhraseMatches++
		}
	}
	score += math.Min(float64(res.PhraseMatches)*0.4, 0.8)

	score += text.Sentiment(lower) * 0.3

	return math.Min(score, 1.0)
}

// featureScore derives a distress score from the raw signal: RMS
// energy (weighted 0.6) and zero-crossing rate (weighted 0.4).
func featureScore(pcm []byte) float64 {
	n := len(pcm) / 2
	if n < 2 {
		return 0.0
	}

	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float64(s) / 32768.0
	}

	sumSq := 0.0
	crossings := 0
	for i, s := range samples {
		sumSq += s * s
		if i > 0 && (s >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	rms := math.Sqrt(sumSq / float64(n))
	zcr := float64(crossings) / float64(n-1)

	energyScore := math.Min(rms*2, 1.0)
	zcrScore := math.Min(zcr*10, 1.0)
	return energyScore*0.6 + zcrScore*0.4
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
