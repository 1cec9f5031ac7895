package naming

import (
	"github.com/jinzhu/inflection"
)

// Pluralizer turns a singular English noun into its plural form.
// Implementations must be total: unknown words degrade to suffix rules.
type Pluralizer interface {
	Plural(word string) string
}

// Singularizer is the optional inverse of Pluralizer, used for reverse lookups.
type Singularizer interface {
	Singular(word string) string
}

// InflectionPluralizer delegates to github.com/jinzhu/inflection, which applies
// an irregular-word table followed by suffix rules (y -> ies, x/ch/sh/ss -> es, +s).
type InflectionPluralizer struct{}

// Plural returns the plural form of word.
func (InflectionPluralizer) Plural(word string) string {
	return inflection.Plural(word)
}

// Singular returns the singular form of word.
func (InflectionPluralizer) Singular(word string) string {
	return inflection.Singular(word)
}

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the pluralizer.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return n.pluralizer.Plural(word)
}

// Singularize converts a plural word to its singular form.
// Checks custom overrides first, then falls back to the pluralizer when it can
// singularize; otherwise the word is returned unchanged.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	if s, ok := n.pluralizer.(Singularizer); ok {
		return s.Singular(word)
	}
	return word
}
