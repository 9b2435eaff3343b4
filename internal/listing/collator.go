package listing

import (
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator compares strings with the rules of one locale. A collate.Collator
// keeps scratch buffers, so calls are serialized.
type Collator struct {
	mu  sync.Mutex
	col *collate.Collator
}

// NewCollator builds a collator for the BCP-47 tag, falling back to Italian
// when the tag does not parse.
func NewCollator(tag string) *Collator {
	lang, err := language.Parse(tag)
	if err != nil {
		lang = language.Italian
	}
	return &Collator{col: collate.New(lang)}
}

// Compare returns -1, 0 or 1. A nil Collator compares bytewise.
func (c *Collator) Compare(a, b string) int {
	if c == nil || c.col == nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.CompareString(a, b)
}
