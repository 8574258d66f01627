package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// rulePipeline is the rule-based execution family: a lexicon loaded from
// rules.json that maps surface forms to labels. It stands in for pipeline
// runtimes that need no tensor runtime or tokenizer.
type rulePipeline struct {
	textRules    []lexiconRule
	tokenRules   []lexiconRule
	textDefault  string
	tokenDefault string
}

type lexiconRule struct {
	Match []string `json:"match"`
	Label string   `json:"label"`

	matchSet map[string]bool
}

type ruleFile struct {
	TextDefault  string        `json:"default"`
	TextRules    []lexiconRule `json:"text_rules"`
	TokenDefault string        `json:"token_default"`
	TokenRules   []lexiconRule `json:"token_rules"`
}

func loadRulePipeline(path string) (*rulePipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	var rf ruleFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	if rf.TextDefault == "" && rf.TokenDefault == "" {
		return nil, fmt.Errorf("rules %s: a default label is required", path)
	}
	p := &rulePipeline{
		textRules:    rf.TextRules,
		tokenRules:   rf.TokenRules,
		textDefault:  rf.TextDefault,
		tokenDefault: rf.TokenDefault,
	}
	for _, rules := range [][]lexiconRule{p.textRules, p.tokenRules} {
		for i := range rules {
			rules[i].matchSet = make(map[string]bool, len(rules[i].Match))
			for _, m := range rules[i].Match {
				rules[i].matchSet[strings.ToLower(m)] = true
			}
		}
	}
	return p, nil
}

// PredictText labels whole texts, processed in batches of batchSize with
// order preserved. The first rule with a hit count above zero wins; ties
// between rules go to the earlier rule.
func (p *rulePipeline) PredictText(texts []string, batchSize int) ([]string, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		for _, text := range texts[start:end] {
			out = append(out, p.labelText(text))
		}
	}
	return out, nil
}

func (p *rulePipeline) labelText(text string) string {
	words := Split(text)
	best := p.textDefault
	bestHits := 0
	for _, rule := range p.textRules {
		hits := 0
		for _, w := range words {
			if rule.matchSet[w] {
				hits++
			}
		}
		if hits > bestHits {
			best = rule.Label
			bestHits = hits
		}
	}
	return best
}

// PredictTokens labels each token of each sequence independently.
func (p *rulePipeline) PredictTokens(seqs [][]string, batchSize int) ([][]string, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	out := make([][]string, 0, len(seqs))
	for start := 0; start < len(seqs); start += batchSize {
		end := min(start+batchSize, len(seqs))
		for _, tokens := range seqs[start:end] {
			labels := make([]string, len(tokens))
			for i, tok := range tokens {
				labels[i] = p.labelToken(strings.ToLower(tok))
			}
			out = append(out, labels)
		}
	}
	return out, nil
}

func (p *rulePipeline) labelToken(token string) string {
	for _, rule := range p.tokenRules {
		if rule.matchSet[token] {
			return rule.Label
		}
	}
	return p.tokenDefault
}

func (p *rulePipeline) Close() error {
	return nil
}
