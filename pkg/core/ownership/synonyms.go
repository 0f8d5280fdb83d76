package ownership

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"sp1500_float/pkg/models"

	"gopkg.in/yaml.v2"
)

//go:embed synonyms.yaml
var embeddedSynonyms []byte

// Synonyms maps normalized free-form holder labels to categories.
type Synonyms struct {
	index map[string]models.CategoryName
}

// ParseSynonyms reads a YAML document of category identifier -> label list.
// A label that normalizes to the same key under two categories is an error.
func ParseSynonyms(data []byte) (*Synonyms, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse synonym table: %w", err)
	}

	s := &Synonyms{index: make(map[string]models.CategoryName)}
	for _, c := range models.AllCategories {
		if err := s.add(c, c.Label()); err != nil {
			return nil, err
		}
		if err := s.add(c, string(c)); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c, err := models.ParseCategoryName(id)
		if err != nil {
			return nil, fmt.Errorf("synonym table: %w", err)
		}
		for _, label := range raw[id] {
			if err := s.add(c, label); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Synonyms) add(c models.CategoryName, label string) error {
	key := NormalizeLabel(label)
	if key == "" {
		return fmt.Errorf("synonym table: empty label under %s", c)
	}
	if prev, ok := s.index[key]; ok && prev != c {
		return fmt.Errorf("synonym table: label %q maps to both %s and %s", label, prev, c)
	}
	s.index[key] = c
	return nil
}

// Match returns the category a free-form label belongs to.
func (s *Synonyms) Match(label string) (models.CategoryName, bool) {
	c, ok := s.index[NormalizeLabel(label)]
	return c, ok
}

// Len returns the number of distinct normalized labels.
func (s *Synonyms) Len() int { return len(s.index) }

var defaultSynonyms = sync.OnceValue(func() *Synonyms {
	s, err := ParseSynonyms(embeddedSynonyms)
	if err != nil {
		panic(err)
	}
	return s
})

// DefaultSynonyms returns the table shipped with the binary.
func DefaultSynonyms() *Synonyms { return defaultSynonyms() }

// NormalizeLabel lower-cases a label, turns punctuation into word breaks and
// drops a trailing "shares".
func NormalizeLabel(label string) string {
	fields := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if n := len(fields); n > 1 && fields[n-1] == "shares" {
		fields = fields[:n-1]
	}
	return strings.Join(fields, " ")
}

// CategoryLabels returns the canonical labels in schema order.
func CategoryLabels() []string {
	labels := make([]string, 0, models.NumCategories)
	for _, c := range models.AllCategories {
		labels = append(labels, c.Label())
	}
	return labels
}
