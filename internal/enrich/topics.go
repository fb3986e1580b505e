package enrich

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// TopicExtractor assigns topic keywords to story titles using TF-IDF
// over the day's corpus. The vocabulary is capped so a huge day cannot
// blow up the term space, and each story gets its top terms.
type TopicExtractor struct {
	MaxFeatures int // vocabulary cap (default 100)
	TopN        int // terms per story (default 3)
}

// NewTopicExtractor returns an extractor with the default caps.
func NewTopicExtractor() *TopicExtractor {
	return &TopicExtractor{MaxFeatures: 100, TopN: 3}
}

// Topics computes per-story topic strings from titles. Stories whose
// title yields no vocabulary terms map to the empty string.
func (e *TopicExtractor) Topics(titles map[int64]string) map[int64]string {
	maxFeatures := e.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = 100
	}
	topN := e.TopN
	if topN <= 0 {
		topN = 3
	}

	ids := make([]int64, 0, len(titles))
	for id := range titles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	docs := make([][]string, len(ids))
	totalFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for i, id := range ids {
		tokens := tokenize(titles[id])
		docs[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			totalFreq[tok]++
			if _, dup := seen[tok]; !dup {
				docFreq[tok]++
				seen[tok] = struct{}{}
			}
		}
	}

	vocab := topTerms(totalFreq, maxFeatures)

	n := float64(len(ids))
	out := make(map[int64]string, len(ids))
	for i, id := range ids {
		tf := make(map[string]int)
		for _, tok := range docs[i] {
			if _, in := vocab[tok]; in {
				tf[tok]++
			}
		}

		type scored struct {
			term   string
			weight float64
		}
		weights := make([]scored, 0, len(tf))
		for term, count := range tf {
			// Smoothed idf keeps terms present in every document usable.
			idf := math.Log((1+n)/(1+float64(docFreq[term]))) + 1
			weights = append(weights, scored{term, float64(count) * idf})
		}
		sort.Slice(weights, func(a, b int) bool {
			if weights[a].weight != weights[b].weight {
				return weights[a].weight > weights[b].weight
			}
			return weights[a].term < weights[b].term
		})
		if len(weights) > topN {
			weights = weights[:topN]
		}
		terms := make([]string, len(weights))
		for j, w := range weights {
			terms[j] = w.term
		}
		out[id] = strings.Join(terms, ",")
	}
	return out
}

// topTerms caps the vocabulary at the most frequent terms, breaking
// frequency ties alphabetically so runs are deterministic.
func topTerms(freq map[string]int, limit int) map[string]struct{} {
	if len(freq) <= limit {
		vocab := make(map[string]struct{}, len(freq))
		for term := range freq {
			vocab[term] = struct{}{}
		}
		return vocab
	}
	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	vocab := make(map[string]struct{}, limit)
	for _, term := range terms[:limit] {
		vocab[term] = struct{}{}
	}
	return vocab
}

// tokenize lowercases, splits on non-alphanumerics and drops stopwords
// and single characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := englishStopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
