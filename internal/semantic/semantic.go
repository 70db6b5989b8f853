// Package semantic implements the optional cosine-similarity re-ranker:
// precomputed 300-dimensional document vectors and word embeddings loaded
// from binary files, used to nudge lexical search results toward
// semantically related documents.
package semantic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
)

// VectorDim is the fixed embedding dimensionality pinned by the on-disk
// binary formats.
const VectorDim = 300

// Scorer holds loaded document vectors and word embeddings. A Scorer with
// no vectors loaded is inert: ComputeSimilarity always returns 0.
type Scorer struct {
	mu         sync.RWMutex
	docVectors map[string][VectorDim]float32
	wordVecs   map[string][VectorDim]float32
	loaded     bool
}

// New returns an empty Scorer.
func New() *Scorer {
	return &Scorer{
		docVectors: make(map[string][VectorDim]float32),
		wordVecs:   make(map[string][VectorDim]float32),
	}
}

// Loaded reports whether both the document-vector and word-embedding files
// were found and parsed successfully.
func (s *Scorer) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// LoadDocumentVectors reads the document vectors file: i32 num_docs, then
// per doc i32 doc_id and f32[300]. A missing file is not an error; the
// scorer simply stays unloaded for documents.
func (s *Scorer) LoadDocumentVectors(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening document vectors %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var numDocs int32
	if err := binary.Read(r, binary.LittleEndian, &numDocs); err != nil {
		return fmt.Errorf("reading document vectors header: %w", err)
	}

	vectors := make(map[string][VectorDim]float32, numDocs)
	for i := int32(0); i < numDocs; i++ {
		var docID int32
		if err := binary.Read(r, binary.LittleEndian, &docID); err != nil {
			return fmt.Errorf("reading doc_id at record %d: %w", i, err)
		}
		var vec [VectorDim]float32
		if err := binary.Read(r, binary.LittleEndian, &vec); err != nil {
			return fmt.Errorf("reading vector at record %d: %w", i, err)
		}
		vectors[fmt.Sprintf("%d", docID)] = vec
	}

	s.mu.Lock()
	s.docVectors = vectors
	s.loaded = len(vectors) > 0 && len(s.wordVecs) > 0
	s.mu.Unlock()
	return nil
}

// LoadWordEmbeddings reads the word embeddings file: i32 num_words, then
// per word i32 len, len bytes of UTF-8 word, f32[300]. Vectors are
// unit-normalized on load.
func (s *Scorer) LoadWordEmbeddings(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening word embeddings %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var numWords int32
	if err := binary.Read(r, binary.LittleEndian, &numWords); err != nil {
		return fmt.Errorf("reading word embeddings header: %w", err)
	}

	words := make(map[string][VectorDim]float32, numWords)
	for i := int32(0); i < numWords; i++ {
		var wordLen int32
		if err := binary.Read(r, binary.LittleEndian, &wordLen); err != nil {
			return fmt.Errorf("reading word length at record %d: %w", i, err)
		}
		buf := make([]byte, wordLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("reading word bytes at record %d: %w", i, err)
		}
		var vec [VectorDim]float32
		if err := binary.Read(r, binary.LittleEndian, &vec); err != nil {
			return fmt.Errorf("reading word vector at record %d: %w", i, err)
		}
		words[strings.ToLower(string(buf))] = normalize(vec)
	}

	s.mu.Lock()
	s.wordVecs = words
	s.loaded = len(s.docVectors) > 0 && len(words) > 0
	s.mu.Unlock()
	return nil
}

func normalize(v [VectorDim]float32) [VectorDim]float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	var out [VectorDim]float32
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// QueryVector averages the known word vectors for words and unit-normalizes
// the result. Returns the zero vector if none of the words are known.
func (s *Scorer) QueryVector(words []string) [VectorDim]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum [VectorDim]float64
	count := 0
	for _, w := range words {
		vec, ok := s.wordVecs[strings.ToLower(w)]
		if !ok {
			continue
		}
		for i, x := range vec {
			sum[i] += float64(x)
		}
		count++
	}

	var out [VectorDim]float32
	if count == 0 {
		return out
	}
	for i := range sum {
		out[i] = float32(sum[i] / float64(count))
	}
	return normalize(out)
}

// ComputeSimilarity returns the cosine similarity between docID's stored
// vector and queryVector, clamped to [0,1]. Returns 0 if either vector is
// absent or zero.
func (s *Scorer) ComputeSimilarity(docID string, queryVector [VectorDim]float32) float64 {
	s.mu.RLock()
	docVec, ok := s.docVectors[docID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	var dot, normDoc, normQuery float64
	for i := 0; i < VectorDim; i++ {
		dot += float64(docVec[i]) * float64(queryVector[i])
		normDoc += float64(docVec[i]) * float64(docVec[i])
		normQuery += float64(queryVector[i]) * float64(queryVector[i])
	}
	if normDoc == 0 || normQuery == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normDoc) * math.Sqrt(normQuery))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
