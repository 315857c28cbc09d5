// Package vocab holds the curated extraction vocabulary: the business
// terms recognized as semantic entities and the phrase patterns that
// trigger conversational relationship predicates. The built-in defaults
// can be overridden from a YAML file.
package vocab

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/nexorial/memlink/pkg/types"
)

// Vocabulary is the compiled extraction vocabulary.
type Vocabulary struct {
	// Terms are domain concepts matched as substrings, lowercase.
	Terms []string

	// Triggers maps a relationship predicate to the compiled phrase
	// patterns that produce it. Each pattern captures the object value in
	// group 1.
	Triggers map[string][]*regexp.Regexp
}

// file is the YAML shape of a vocabulary override.
type file struct {
	Terms    []string            `yaml:"terms"`
	Triggers map[string][]string `yaml:"triggers"`
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	v, err := compile(file{
		Terms: []string{
			"delivery", "payment", "invoice", "order", "repair", "maintenance",
			"shipping", "billing", "customer service", "support",
		},
		Triggers: map[string][]string{
			types.PredicatePrefers: {
				`prefer(?:s)?\s+(.+)`,
				`likes?\s+(.+)`,
				`wants?\s+(.+)`,
			},
			types.PredicateRequires: {
				`require(?:s)?\s+(.+)`,
				`needs?\s+(.+)`,
				`must\s+(.+)`,
			},
			types.PredicateHasPolicy: {
				`policy\s+(.+)`,
				`rule\s+(.+)`,
				`always\s+(.+)`,
				`never\s+(.+)`,
			},
			types.PredicateHasCommitment: {
				`promise(?:s)?\s+(.+)`,
				`commit(?:s)?\s+(.+)`,
				`agree(?:s)?\s+(.+)`,
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("vocab: built-in vocabulary failed to compile: %v", err))
	}
	return v
}

// Load reads a vocabulary from a YAML file. Sections left empty in the
// file fall back to the built-in defaults.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vocab: parse %s: %w", path, err)
	}

	defaults := Default()
	v, err := compile(f)
	if err != nil {
		return nil, err
	}
	if len(v.Terms) == 0 {
		v.Terms = defaults.Terms
	}
	if len(v.Triggers) == 0 {
		v.Triggers = defaults.Triggers
	}
	return v, nil
}

func compile(f file) (*Vocabulary, error) {
	v := &Vocabulary{
		Terms:    f.Terms,
		Triggers: make(map[string][]*regexp.Regexp, len(f.Triggers)),
	}
	for predicate, patterns := range f.Triggers {
		if !types.IsValidPredicate(predicate) {
			return nil, fmt.Errorf("vocab: unknown predicate %q", predicate)
		}
		for _, p := range patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("vocab: pattern %q for %s: %w", p, predicate, err)
			}
			v.Triggers[predicate] = append(v.Triggers[predicate], re)
		}
	}
	return v, nil
}
