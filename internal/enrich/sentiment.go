package enrich

import (
	"math"
	"strings"
	"unicode"
)

// Sentiment label thresholds on the compound score.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// normalizationAlpha dampens the compound score into [-1, 1].
const normalizationAlpha = 15

const (
	negationScalar = -0.74
	boosterScalar  = 0.293
	negationWindow = 3
)

// SentimentResult is the scored sentiment of one text.
type SentimentResult struct {
	Compound float64 // [-1, 1], rounded to 4 decimals
	Label    string  // positive, negative or neutral
}

// Analyze scores cleaned text against the valence lexicon. Negations
// within three tokens flip a term's valence and degree adverbs boost
// it; the summed valence is normalized into a compound score.
func Analyze(text string) SentimentResult {
	tokens := sentimentTokens(text)

	var sum float64
	for i, tok := range tokens {
		valence, scored := valenceLexicon[tok]
		if !scored {
			continue
		}
		boost := 0.0
		negated := false
		for back := 1; back <= negationWindow && i-back >= 0; back++ {
			prev := tokens[i-back]
			if _, neg := negations[prev]; neg {
				negated = true
			}
			if _, b := boosters[prev]; b && back == 1 {
				boost = boosterScalar
			}
		}
		if valence > 0 {
			valence += boost
		} else {
			valence -= boost
		}
		if negated {
			valence *= negationScalar
		}
		sum += valence
	}

	compound := round4(sum / math.Sqrt(sum*sum+normalizationAlpha))
	return SentimentResult{Compound: compound, Label: labelFor(compound)}
}

func labelFor(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return "positive"
	case compound <= negativeThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

func sentimentTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "neither": {}, "nobody": {},
	"none": {}, "nothing": {}, "nowhere": {}, "isn't": {}, "aren't": {},
	"wasn't": {}, "weren't": {}, "don't": {}, "doesn't": {}, "didn't": {},
	"can't": {}, "cannot": {}, "couldn't": {}, "won't": {}, "wouldn't": {},
	"shouldn't": {}, "hardly": {}, "rarely": {}, "without": {},
}

var boosters = map[string]struct{}{
	"very": {}, "really": {}, "extremely": {}, "absolutely": {},
	"completely": {}, "totally": {}, "highly": {}, "incredibly": {},
	"remarkably": {}, "so": {}, "super": {}, "particularly": {},
}
