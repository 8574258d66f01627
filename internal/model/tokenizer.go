package model

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
)

// Tokenizer encodes text into fixed-length id sequences against a
// vocabulary file (one token per line, line number = id). Lowercasing and
// punctuation splitting match how the bundled vocabularies were built.
type Tokenizer struct {
	vocab  map[string]int64
	maxLen int
	padID  int64
	unkID  int64
	clsID  int64
}

func LoadTokenizer(path string, maxLen int) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary %s: %w", path, err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if token == "" {
			continue
		}
		vocab[token] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}

	t := &Tokenizer{vocab: vocab, maxLen: maxLen}
	for _, special := range []struct {
		token string
		dst   *int64
	}{
		{padToken, &t.padID},
		{unkToken, &t.unkID},
		{clsToken, &t.clsID},
	} {
		id, ok := vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("vocabulary %s is missing special token %s", path, special.token)
		}
		*special.dst = id
	}
	return t, nil
}

func (t *Tokenizer) MaxLen() int {
	return t.maxLen
}

// Encode tokenizes free text into ids and an attention mask of length
// MaxLen, with a leading [CLS] and [PAD] filling.
func (t *Tokenizer) Encode(text string) (ids, mask []int64) {
	words := Split(text)
	ids = make([]int64, t.maxLen)
	mask = make([]int64, t.maxLen)

	ids[0] = t.clsID
	mask[0] = 1
	pos := 1
	for _, w := range words {
		if pos >= t.maxLen {
			break
		}
		ids[pos] = t.lookup(w)
		mask[pos] = 1
		pos++
	}
	for i := pos; i < t.maxLen; i++ {
		ids[i] = t.padID
	}
	return ids, mask
}

// EncodeTokens encodes pre-tokenized input. wordIdx maps each encoded
// position back to the source token index, with -1 for [CLS] and padding,
// which is what per-token prediction alignment keys off.
func (t *Tokenizer) EncodeTokens(words []string) (ids, mask []int64, wordIdx []int) {
	ids = make([]int64, t.maxLen)
	mask = make([]int64, t.maxLen)
	wordIdx = make([]int, t.maxLen)
	for i := range wordIdx {
		wordIdx[i] = -1
	}

	ids[0] = t.clsID
	mask[0] = 1
	pos := 1
	for i, w := range words {
		if pos >= t.maxLen {
			break
		}
		ids[pos] = t.lookup(strings.ToLower(w))
		mask[pos] = 1
		wordIdx[pos] = i
		pos++
	}
	for i := pos; i < t.maxLen; i++ {
		ids[i] = t.padID
	}
	return ids, mask, wordIdx
}

func (t *Tokenizer) lookup(token string) int64 {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return t.unkID
}

// Split lowercases and tokenizes free text: letter/digit runs become
// tokens, punctuation becomes single-rune tokens.
func Split(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()
	return tokens
}
