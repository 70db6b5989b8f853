// Package trie implements a character trie over lexicon tokens supporting
// lexicographically ordered prefix completion.
package trie

import (
	"sort"
	"strings"
	"sync"
)

type node struct {
	children map[byte]*node
	word     string // set only on a terminal node, holds the original inserted word
	terminal bool
}

func newNode() *node {
	return &node{children: make(map[byte]*node)}
}

// Trie is a thread-safe prefix trie over lowercased words.
type Trie struct {
	mu   sync.RWMutex
	root *node
}

// New returns an empty Trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// Insert lowercases word and adds it to the trie. The terminal node stores
// the original (already-lowercased) word so autocomplete can return it
// directly.
func (t *Trie) Insert(word string) {
	lower := strings.ToLower(word)
	if lower == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.root
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		child, ok := cur.children[c]
		if !ok {
			child = newNode()
			cur.children[c] = child
		}
		cur = child
	}
	cur.terminal = true
	cur.word = lower
}

// Clear empties the trie.
func (t *Trie) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = newNode()
}

// Empty reports whether the trie has no entries.
func (t *Trie) Empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.root.children) == 0
}

// Autocomplete navigates to the prefix node (the empty string navigates to
// the root) and performs a lex-ordered depth-first search, collecting at
// most k terminal words. It returns fewer than k if the subtree is
// exhausted, and an empty slice if the prefix node does not exist.
func (t *Trie) Autocomplete(prefix string, k int) []string {
	lower := strings.ToLower(prefix)
	t.mu.RLock()
	defer t.mu.RUnlock()

	cur := t.root
	for i := 0; i < len(lower); i++ {
		child, ok := cur.children[lower[i]]
		if !ok {
			return []string{}
		}
		cur = child
	}

	results := make([]string, 0, k)
	dfs(cur, k, &results)
	return results
}

func dfs(n *node, k int, results *[]string) {
	if len(*results) >= k {
		return
	}
	if n.terminal {
		*results = append(*results, n.word)
		if len(*results) >= k {
			return
		}
	}
	keys := make([]byte, 0, len(n.children))
	for c := range n.children {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, c := range keys {
		dfs(n.children[c], k, results)
		if len(*results) >= k {
			return
		}
	}
}

// LoadFromWords clears the trie and inserts every word in words, matching
// the invariant that reloading a lexicon rebuilds the trie from scratch.
func (t *Trie) LoadFromWords(words []string) {
	t.Clear()
	for _, w := range words {
		t.Insert(w)
	}
}
