package semantic

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeWordEmbeddings(t *testing.T, path string, words map[string][VectorDim]float32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	binary.Write(w, binary.LittleEndian, int32(len(words)))
	for word, vec := range words {
		binary.Write(w, binary.LittleEndian, int32(len(word)))
		w.WriteString(word)
		binary.Write(w, binary.LittleEndian, vec)
	}
	w.Flush()
}

func writeDocVectors(t *testing.T, path string, docs map[int32][VectorDim]float32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	binary.Write(w, binary.LittleEndian, int32(len(docs)))
	for docID, vec := range docs {
		binary.Write(w, binary.LittleEndian, docID)
		binary.Write(w, binary.LittleEndian, vec)
	}
	w.Flush()
}

func unitVec(dim int) [VectorDim]float32 {
	var v [VectorDim]float32
	v[dim] = 1
	return v
}

func TestQueryVectorAveragesAndNormalizes(t *testing.T) {
	s := New()
	dir := t.TempDir()
	wordsPath := filepath.Join(dir, "word_embeddings.bin")
	writeWordEmbeddings(t, wordsPath, map[string][VectorDim]float32{
		"alpha": unitVec(0),
		"beta":  unitVec(1),
	})
	if err := s.LoadWordEmbeddings(wordsPath); err != nil {
		t.Fatalf("LoadWordEmbeddings: %v", err)
	}

	qv := s.QueryVector([]string{"alpha", "beta", "unknown"})
	if qv[0] <= 0 || qv[1] <= 0 {
		t.Errorf("expected both known dims to contribute, got %v", qv[:2])
	}

	empty := s.QueryVector([]string{"nope"})
	for _, x := range empty {
		if x != 0 {
			t.Fatalf("expected zero vector for all-unknown query, got %v", empty)
		}
	}
}

func TestComputeSimilarityClampedAndZeroOnMiss(t *testing.T) {
	s := New()
	dir := t.TempDir()
	docPath := filepath.Join(dir, "document_vectors.bin")
	writeDocVectors(t, docPath, map[int32][VectorDim]float32{1: unitVec(0)})
	wordPath := filepath.Join(dir, "word_embeddings.bin")
	writeWordEmbeddings(t, wordPath, map[string][VectorDim]float32{"alpha": unitVec(0)})

	if err := s.LoadDocumentVectors(docPath); err != nil {
		t.Fatalf("LoadDocumentVectors: %v", err)
	}
	if err := s.LoadWordEmbeddings(wordPath); err != nil {
		t.Fatalf("LoadWordEmbeddings: %v", err)
	}
	if !s.Loaded() {
		t.Fatalf("expected scorer to report loaded")
	}

	qv := s.QueryVector([]string{"alpha"})
	sim := s.ComputeSimilarity("1", qv)
	if sim < 0 || sim > 1 {
		t.Fatalf("similarity out of [0,1]: %v", sim)
	}
	if sim < 0.99 {
		t.Errorf("expected near-1 similarity for identical direction, got %v", sim)
	}

	if got := s.ComputeSimilarity("missing", qv); got != 0 {
		t.Errorf("expected 0 similarity for missing doc, got %v", got)
	}
}
