package docindex

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/troikatech/voice-bridge/pkg/metrics"
)

// Index is an in-memory inverted keyword index over short text documents.
// It is constructed explicitly and torn down with Close; a closed index
// rejects all operations.
type Index struct {
	mu     sync.RWMutex
	docs   map[string]Document
	terms  map[string]map[string]struct{} // term -> set of doc IDs
	closed bool
}

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IndexedAt time.Time `json:"indexed_at"`
}

// SearchResult is one search hit with a naive term-overlap score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    int      `json:"score"`
}

var ErrClosed = fmt.Errorf("document index is closed")

func New() *Index {
	return &Index{
		docs:  make(map[string]Document),
		terms: make(map[string]map[string]struct{}),
	}
}

// Add indexes a document and returns its generated ID.
func (ix *Index) Add(title, body string) (Document, error) {
	start := time.Now()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return Document{}, ErrClosed
	}

	doc := Document{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		IndexedAt: time.Now().UTC(),
	}
	ix.docs[doc.ID] = doc

	for _, term := range tokenize(title + " " + body) {
		set, ok := ix.terms[term]
		if !ok {
			set = make(map[string]struct{})
			ix.terms[term] = set
		}
		set[doc.ID] = struct{}{}
	}

	metrics.RecordServiceCall("docindex.add", true, time.Since(start))
	return doc, nil
}

// Search returns documents matching any query term, ranked by the number of
// distinct terms matched, ties broken by newest first.
func (ix *Index) Search(query string) ([]SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return nil, ErrClosed
	}

	scores := make(map[string]int)
	for _, term := range tokenize(query) {
		for id := range ix.terms[term] {
			scores[id]++
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, SearchResult{Document: ix.docs[id], Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.IndexedAt.After(results[j].Document.IndexedAt)
	})
	return results, nil
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Close tears the index down and releases its memory. Idempotent.
func (ix *Index) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.docs = nil
	ix.terms = nil
	ix.closed = true
}

// tokenize lowercases and splits on non-alphanumeric runs, deduplicating.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
