// Package tokens estimates token counts for replies whose server did not
// report usage.
package tokens

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens in a piece of generated text.
type Counter interface {
	Count(text string) int
}

// WordCounter counts whitespace-delimited words.
type WordCounter struct{}

// Count returns the number of whitespace-delimited words in text.
func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// CodecCounter counts BPE tokens with a tiktoken codec, falling back to
// word counting if encoding fails.
type CodecCounter struct {
	codec tokenizer.Codec
}

// Count returns the number of tokens in text.
func (c *CodecCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return WordCounter{}.Count(text)
	}
	return len(ids)
}

// NewCounter returns a cl100k_base counter, or a WordCounter when the
// codec cannot be loaded. Both are deterministic.
func NewCounter() Counter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return WordCounter{}
	}
	return &CodecCounter{codec: codec}
}
