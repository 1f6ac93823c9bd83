package services

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"ragdemo/models"
)

// BM25 parameters. k1 controls term-frequency saturation, b length
// normalization; the usual Okapi defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// KeywordIndex is an in-memory Okapi BM25 index over indexed chunks. It is
// the sparse arm of the hybrid retriever; the dense arm lives in Chroma.
type KeywordIndex struct {
	mu           sync.RWMutex
	chunks       []models.Chunk
	termFreqs    []map[string]int
	lengths      []int
	totalLength  int
	docFreq      map[string]int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewKeywordIndex creates an empty index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{
		docFreq:      make(map[string]int),
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Add indexes the given chunks.
func (k *KeywordIndex) Add(chunks []models.Chunk) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, ch := range chunks {
		tokens := k.tokenize(ch.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			k.docFreq[term]++
		}
		k.chunks = append(k.chunks, ch)
		k.termFreqs = append(k.termFreqs, tf)
		k.lengths = append(k.lengths, len(tokens))
		k.totalLength += len(tokens)
	}
}

// Search returns the topK chunks ranked by BM25 score. Chunks that match no
// query term are omitted, so the result may be shorter than topK.
func (k *KeywordIndex) Search(query string, topK int) []models.ScoredChunk {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	qTokens := k.tokenize(query)
	if len(qTokens) == 0 || len(k.chunks) == 0 {
		return nil
	}
	n := float64(len(k.chunks))
	avgLen := float64(k.totalLength) / n

	scores := make([]float64, len(k.chunks))
	for _, term := range qTokens {
		df, ok := k.docFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i, tf := range k.termFreqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(k.lengths[i])/avgLen))
			scores[i] += idf * norm
		}
	}

	results := make([]models.ScoredChunk, 0, len(k.chunks))
	for i, s := range scores {
		if s > 0 {
			results = append(results, models.ScoredChunk{Chunk: k.chunks[i], Score: s})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results
}

// RemoveBySource drops every chunk that came from the given source. Used by
// the directory watcher when a file is deleted or rewritten.
func (k *KeywordIndex) RemoveBySource(source string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	removed := 0
	chunks := k.chunks[:0]
	termFreqs := k.termFreqs[:0]
	lengths := k.lengths[:0]
	for i, ch := range k.chunks {
		if ch.Source == source {
			for term := range k.termFreqs[i] {
				k.docFreq[term]--
				if k.docFreq[term] == 0 {
					delete(k.docFreq, term)
				}
			}
			k.totalLength -= k.lengths[i]
			removed++
			continue
		}
		chunks = append(chunks, ch)
		termFreqs = append(termFreqs, k.termFreqs[i])
		lengths = append(lengths, k.lengths[i])
	}
	k.chunks = chunks
	k.termFreqs = termFreqs
	k.lengths = lengths
	return removed
}

// Len reports the number of indexed chunks.
func (k *KeywordIndex) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.chunks)
}

// Clear drops all indexed chunks.
func (k *KeywordIndex) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.chunks = nil
	k.termFreqs = nil
	k.lengths = nil
	k.totalLength = 0
	k.docFreq = make(map[string]int)
}

func (k *KeywordIndex) tokenize(text string) []string {
	raw := k.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if _, isStop := k.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "what", "which", "who", "how", "when", "where",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
