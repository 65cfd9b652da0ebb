package docindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Entry is one indexed slice of generated documentation, tied back to
// the span of the recording it documents.
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Hit is a search result with its similarity score.
type Hit struct {
	Score float64 `json:"score"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Index makes generated documentation searchable per session.
type Index interface {
	Upsert(ctx context.Context, sessionID string, entries []Entry) (int, error)
	Search(ctx context.Context, sessionID, query string, topK int) ([]Hit, error)
}

// MemoryIndex is the zero-dependency default: bag-of-words vectors with
// cosine scoring. Good enough for single-process deployments.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string][]memoryDoc
}

type memoryDoc struct {
	entry Entry
	embed map[string]float64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string][]memoryDoc)}
}

func (m *MemoryIndex) Upsert(_ context.Context, sessionID string, entries []Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]memoryDoc, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, memoryDoc{entry: e, embed: embedText(strings.ToLower(e.Text))})
	}
	m.docs[sessionID] = docs
	return len(docs), nil
}

func (m *MemoryIndex) Search(_ context.Context, sessionID, query string, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.docs[sessionID]
	qv := embedText(strings.ToLower(query))

	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = min(len(scores), 5)
	}
	hits := make([]Hit, 0, topK)
	for _, sc := range scores[:topK] {
		e := docs[sc.i].entry
		hits = append(hits, Hit{Score: sc.score, Start: e.Start, End: e.End, Text: e.Text})
	}
	return hits, nil
}

func embedText(text string) map[string]float64 {
	m := map[string]float64{}
	for _, t := range strings.Fields(text) {
		m[t]++
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SectionEntries splits a merged markdown document into index entries,
// one per "## MM:SS - MM:SS" section.
func SectionEntries(doc string) []Entry {
	var entries []Entry
	sections := strings.Split(doc, "\n## ")
	for _, sec := range sections {
		line, body, found := strings.Cut(sec, "\n")
		if !found {
			continue
		}
		var sm, ss, em, es int
		if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d:%d - %d:%d", &sm, &ss, &em, &es); err != nil {
			continue
		}
		text := strings.TrimSpace(body)
		if text == "" {
			continue
		}
		entries = append(entries, Entry{
			Start: float64(sm*60 + ss),
			End:   float64(em*60 + es),
			Text:  text,
		})
	}
	return entries
}
