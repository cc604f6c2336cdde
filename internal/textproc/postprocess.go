// Package textproc cleans transcripts before they are typed: a
// user-maintained corrections map for names the recognizer keeps getting
// wrong, whitespace trimming, and first-letter capitalization.
package textproc

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type replacement struct {
	re   *regexp.Regexp
	with string
}

// PostProcessor applies the corrections map with word boundaries so
// partial matches inside longer words are left alone.
type PostProcessor struct {
	rules []replacement
}

var defaultCorrections = map[string]string{}

// Load reads the corrections JSON file, creating it with an empty map
// when missing so users have a file to edit.
func Load(path string) (*PostProcessor, error) {
	if path == "" {
		return &PostProcessor{}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		seed, _ := json.MarshalIndent(defaultCorrections, "", "  ")
		if werr := os.WriteFile(path, seed, 0o644); werr != nil {
			return nil, fmt.Errorf("create corrections file: %w", werr)
		}
		return &PostProcessor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corrections file: %w", err)
	}

	var corrections map[string]string
	if err := json.Unmarshal(data, &corrections); err != nil {
		return nil, fmt.Errorf("parse corrections file: %w", err)
	}
	return NewPostProcessor(corrections), nil
}

func NewPostProcessor(corrections map[string]string) *PostProcessor {
	keys := make([]string, 0, len(corrections))
	for k := range corrections {
		keys = append(keys, k)
	}
	// Deterministic application order.
	sort.Strings(keys)

	p := &PostProcessor{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(k) + `\b`)
		if err != nil {
			continue
		}
		p.rules = append(p.rules, replacement{re: re, with: corrections[k]})
	}
	return p
}

// Apply cleans one transcript. An empty result means there is nothing
// worth typing.
func (p *PostProcessor) Apply(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	for _, r := range p.rules {
		text = r.re.ReplaceAllString(text, r.with)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r)) + text[size:]
}

