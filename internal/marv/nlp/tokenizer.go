package nlp

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// tiktokenTokenizer adapts a tiktoken BPE encoding to the Tokenizer
// interface. Encoding data is loaded once at construction.
type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns a Tokenizer using the BPE encoding appropriate for
// the given model name (e.g. "gpt-3.5-turbo" → cl100k_base).
func NewTiktoken(model string) (Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("nlp: load tokenizer for model %q: %w", model, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
