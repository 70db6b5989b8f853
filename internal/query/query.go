// Package query implements the read path: tokenizing a query against the
// lexicon, merging barrel and delta postings, applying the AND filter and
// proximity bonus, ranking, an optional semantic re-rank, and serializing
// the top results.
package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/paperindex/docsearch/internal/barrelcache"
	"github.com/paperindex/docsearch/internal/docstats"
	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/invertedindex"
	"github.com/paperindex/docsearch/internal/lexicon"
	"github.com/paperindex/docsearch/internal/metadata"
	"github.com/paperindex/docsearch/internal/ranking"
	"github.com/paperindex/docsearch/internal/semantic"
	"github.com/paperindex/docsearch/internal/tokenizer"
	"github.com/paperindex/docsearch/internal/trie"
	"github.com/paperindex/docsearch/internal/urlmap"
)

const (
	maxResults           = 50
	proximityBonus       = 100.0
	defaultSemanticBlend = 0.4
	autocompleteMax      = 50
	autocompleteMin      = 1
)

// ResultItem is one serialized search hit.
type ResultItem struct {
	DocID           string  `json:"docId"`
	Score           float64 `json:"score"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	CitedByCount    *int    `json:"cited_by_count,omitempty"`
	hasMetadata     bool
	publicationYear int
	citedByCount    int
}

// SearchResponse is the top-level /search JSON body.
type SearchResponse struct {
	Query   string       `json:"query"`
	Results []ResultItem `json:"results"`
}

// AutocompleteResponse is the top-level /autocomplete JSON body.
type AutocompleteResponse struct {
	Prefix      string   `json:"prefix"`
	Suggestions []string `json:"suggestions"`
}

// Engine composes every read-side component into search and autocomplete.
type Engine struct {
	Lexicon  *lexicon.Lexicon
	Trie     *trie.Trie
	Barrels  *invertedindex.Barrels
	Cache    *barrelcache.Cache
	Delta    *invertedindex.Delta
	DocStats *docstats.Cache
	Forward  *forwardindex.ForwardIndex
	Metadata *metadata.Store
	URLs     *urlmap.Mapper
	Semantic *semantic.Scorer
	Ranker   *ranking.Scorer

	// SemanticWeight is the blend factor applied to the normalized semantic
	// similarity during re-rank; the lexical score keeps (1-SemanticWeight).
	// Zero falls back to defaultSemanticBlend.
	SemanticWeight float64
}

type docAccum struct {
	score      float64
	matchCount int
	positions  [][]int // indexed by query-term position
}

// Search implements the nine-step search pipeline.
func (e *Engine) Search(queryText string) SearchResponse {
	terms := tokenizer.Terms(queryText)

	type resolvedTerm struct {
		term   string
		wordID int
	}
	resolved := make([]resolvedTerm, 0, len(terms))
	for _, t := range terms {
		if id := e.Lexicon.GetWordIndex(t); id >= 0 {
			resolved = append(resolved, resolvedTerm{term: t, wordID: id})
		}
	}

	if len(resolved) == 0 {
		return SearchResponse{Query: queryText, Results: []ResultItem{}}
	}

	docs := make(map[string]*docAccum)
	for i, rt := range resolved {
		postings := e.postingsFor(rt.wordID)
		for _, p := range postings {
			acc, ok := docs[p.DocID]
			if !ok {
				acc = &docAccum{positions: make([][]int, len(resolved))}
				docs[p.DocID] = acc
			}
			acc.score += e.scorePosting(p, rt.wordID, p.DocID)
			acc.matchCount++
			acc.positions[i] = p.Positions
		}
	}

	validQueryWords := len(resolved)
	docIDs := make([]string, 0, len(docs))
	for docID, acc := range docs {
		if acc.matchCount != validQueryWords {
			continue
		}
		docIDs = append(docIDs, docID)
	}

	for _, docID := range docIDs {
		acc := docs[docID]
		for i := 0; i+1 < len(acc.positions); i++ {
			a := acc.positions[i]
			b := acc.positions[i+1]
			if len(a) == 0 || len(b) == 0 {
				continue
			}
			if adjacentMatch(a, b) {
				acc.score += proximityBonus
			}
		}
	}

	results := make([]ResultItem, 0, len(docIDs))
	for _, docID := range docIDs {
		results = append(results, e.buildResultItem(docID, docs[docID].score))
	}

	if e.Semantic != nil && e.Semantic.Loaded() && len(results) > 0 {
		e.semanticRerank(results, terms)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].publicationYear != results[j].publicationYear {
			return results[i].publicationYear > results[j].publicationYear
		}
		return results[i].citedByCount > results[j].citedByCount
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return SearchResponse{Query: queryText, Results: results}
}

func adjacentMatch(a, b []int) bool {
	set := make(map[int]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := set[y-1]; ok {
			return true
		}
	}
	return false
}

// postingsFor returns the union of a word-id's barrel and delta postings.
func (e *Engine) postingsFor(wordID int) []invertedindex.Posting {
	barrelID := e.Barrels.BarrelID(wordID)
	key := strconv.Itoa(wordID)

	var out []invertedindex.Posting
	if pm, err := e.Cache.Get(barrelID); err == nil {
		out = append(out, pm[key]...)
	}
	out = append(out, e.Delta.Get(wordID)...)
	return out
}

func (e *Engine) scorePosting(p invertedindex.Posting, wordID int, docID string) float64 {
	docLength, titleFreq := e.docStatsFor(docID, wordID)
	metaEntry, hasMeta := e.Metadata.Get(docID)

	in := ranking.Input{
		WeightedFrequency: p.WeightedFrequency,
		TitleFrequency:    titleFreq,
		Positions:         p.Positions,
		DocLength:         docLength,
		MetadataAvailable: hasMeta,
		CitedByCount:      metaEntry.CitedByCount,
		PublicationYear:   metaEntry.PublicationYear,
	}
	return e.Ranker.Score(in)
}

// docStatsFor returns (doc_length, title_frequency) for (docID, wordID),
// falling back to a direct forward-index read when the doc-stats cache
// doesn't yet know about a just-ingested document.
func (e *Engine) docStatsFor(docID string, wordID int) (int, int) {
	if entry, ok := e.DocStats.Get(docID); ok {
		return entry.DocLength, entry.TitleFreqs[wordID]
	}
	if rec, ok, err := e.Forward.ReadLine(docID); err == nil && ok {
		stats, present := rec.Words[strconv.Itoa(wordID)]
		if present {
			return rec.DocLength, stats.TitleFrequency
		}
		return rec.DocLength, 0
	}
	return 0, 0
}

func (e *Engine) buildResultItem(docID string, score float64) ResultItem {
	item := ResultItem{DocID: docID, Score: score, URL: e.URLs.Get(docID)}
	if entry, ok := e.Metadata.Get(docID); ok {
		item.Title = entry.Title
		item.hasMetadata = true
		item.publicationYear = entry.PublicationYear
		item.citedByCount = entry.CitedByCount
		if entry.PublicationYear > 0 {
			year := entry.PublicationYear
			item.PublicationYear = &year
		}
		cited := entry.CitedByCount
		item.CitedByCount = &cited
	}
	return item
}

func (e *Engine) semanticRerank(results []ResultItem, terms []string) {
	semanticW := e.SemanticWeight
	if semanticW <= 0 {
		semanticW = defaultSemanticBlend
	}
	lexicalW := 1 - semanticW

	qv := e.Semantic.QueryVector(terms)
	sims := make([]float64, len(results))
	minSim, maxSim := 1.0, 0.0
	for i, r := range results {
		sims[i] = e.Semantic.ComputeSimilarity(r.DocID, qv)
		if sims[i] < minSim {
			minSim = sims[i]
		}
		if sims[i] > maxSim {
			maxSim = sims[i]
		}
	}
	spread := maxSim - minSim
	for i := range results {
		normalized := 0.0
		if spread > 0 {
			normalized = (sims[i] - minSim) / spread
		}
		results[i].Score = lexicalW*results[i].Score + semanticW*normalized
	}
}

// Autocomplete implements autocomplete(prefix, limit).
func (e *Engine) Autocomplete(prefix string, limit int) AutocompleteResponse {
	clean := strings.ToLower(strings.TrimSpace(prefix))
	if limit < autocompleteMin {
		limit = autocompleteMin
	}
	if limit > autocompleteMax {
		limit = autocompleteMax
	}
	suggestions := e.Trie.Autocomplete(clean, limit)
	return AutocompleteResponse{Prefix: clean, Suggestions: suggestions}
}

// ReloadDeltaIndex re-reads the delta file into RAM after a batch flush.
func (e *Engine) ReloadDeltaIndex() error {
	return e.Delta.Load()
}

// ReloadMetadata re-reads the metadata file into RAM after a batch flush.
func (e *Engine) ReloadMetadata() error {
	return e.Metadata.Load()
}
