package ocr

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Cache wraps an Engine and reuses results for byte-identical inputs with the
// same recognition settings. Recaps often repeat blank or near-blank panels,
// and those collapse to the same preprocessed image.
type Cache struct {
	engine Engine

	mu      sync.Mutex
	results map[string]Result
	hits    int
	misses  int
}

// NewCache wraps engine.
func NewCache(engine Engine) *Cache {
	return &Cache{engine: engine, results: make(map[string]Result)}
}

func (c *Cache) Name() string { return c.engine.Name() }

// Recognize returns a cached result when available. The returned InputID is
// always the caller's.
func (c *Cache) Recognize(ctx context.Context, in Input) (Result, error) {
	key := Key(in)
	c.mu.Lock()
	res, ok := c.results[key]
	if ok {
		c.hits++
	}
	c.mu.Unlock()
	if ok {
		res.InputID = in.ID
		return res, nil
	}

	res, err := c.engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, err
	}
	c.mu.Lock()
	c.results[key] = res
	c.misses++
	c.mu.Unlock()
	return res, nil
}

// Stats reports cache hits and misses.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Key is the BLAKE2b-256 digest of the image payload and every setting that
// changes recognition output.
func Key(in Input) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(in.Format))
	h.Write([]byte{0})
	h.Write(in.Image)
	h.Write([]byte{0})
	for _, l := range in.Languages {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k + "=" + in.Metadata[k]))
		h.Write([]byte{0})
	}
	h.Write([]byte{byte(in.DPI >> 8), byte(in.DPI)})
	return hex.EncodeToString(h.Sum(nil))
}
