// Package canon maps untrusted region and district labels onto the fixed
// canonical entity space.
//
// Canonicalization is a composition of small steps, each usable on its own:
// HasDigit rejects corrupted numeric rows, Clean de-noises the text, and the
// Canonicalizer then tries the alias table, an exact universe match and finally
// a bidirectional containment match against the universe.
package canon

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unresolved marks a label that must not reach the snapshot. Clean can never
// produce it, so it cannot collide with real text.
const Unresolved = "<unresolved>"

// Role selects how a label is canonicalized.
type Role int

const (
	RoleRegion Role = iota
	RoleDistrict
)

func (r Role) String() string {
	if r == RoleDistrict {
		return "district"
	}
	return "region"
}

// Method records which step produced a Resolution.
type Method string

const (
	MethodRejected    Method = "rejected"
	MethodCleaned     Method = "cleaned"
	MethodAlias       Method = "alias"
	MethodExact       Method = "exact"
	MethodContainment Method = "containment"
	MethodPassThrough Method = "pass_through"
)

// Resolution is the outcome of canonicalizing one label.
type Resolution struct {
	Name       string
	Method     Method
	Candidates []string
}

// Resolved reports whether the label is usable downstream.
func (r Resolution) Resolved() bool {
	return r.Method != MethodRejected
}

// Ambiguous reports a containment match that hit more than one entity.
func (r Resolution) Ambiguous() bool {
	return r.Method == MethodContainment && len(r.Candidates) > 1
}

// Universe is the immutable set of canonical entity names, in priority order.
type Universe struct {
	names []string
	index map[string]struct{}
}

// NewUniverse builds a universe from already-canonical names. Duplicates are ignored.
func NewUniverse(names []string) Universe {
	u := Universe{index: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if _, ok := u.index[name]; ok {
			continue
		}
		u.index[name] = struct{}{}
		u.names = append(u.names, name)
	}
	return u
}

// Contains reports membership.
func (u Universe) Contains(name string) bool {
	_, ok := u.index[name]
	return ok
}

// Names returns a copy of the names in priority order.
func (u Universe) Names() []string {
	return append([]string(nil), u.names...)
}

// Len returns the number of entities.
func (u Universe) Len() int {
	return len(u.names)
}

// HasDigit reports whether the text carries any digit. Such rows are sentinel
// garbage in the upstream batches rather than real names.
func HasDigit(raw string) bool {
	return strings.IndexFunc(raw, unicode.IsDigit) >= 0
}

// Clean upper-cases, spells out ampersands, folds diacritics, drops everything
// but A-Z and whitespace, and collapses whitespace runs.
func Clean(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "&", " AND ")
	s = foldDiacritics(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Canonicalizer resolves labels against a universe and an alias table.
type Canonicalizer struct {
	universe Universe
	aliases  map[string]string
}

// NewCanonicalizer copies the alias table, cleaning its keys. Every alias
// target must be a member of the universe.
func NewCanonicalizer(universe Universe, aliases map[string]string) (*Canonicalizer, error) {
	table := make(map[string]string, len(aliases))
	for from, to := range aliases {
		if !universe.Contains(to) {
			return nil, fmt.Errorf("alias %q targets unknown entity %q", from, to)
		}
		key := Clean(from)
		if key == "" {
			return nil, fmt.Errorf("alias %q is empty after cleaning", from)
		}
		table[key] = to
	}
	return &Canonicalizer{universe: universe, aliases: table}, nil
}

// Universe returns the universe the canonicalizer resolves against.
func (c *Canonicalizer) Universe() Universe {
	return c.universe
}

// Canonicalize never fails: it returns either a usable name or a Resolution
// whose Name is Unresolved.
func (c *Canonicalizer) Canonicalize(raw string, role Role) Resolution {
	if HasDigit(raw) {
		return rejected()
	}
	s := Clean(raw)
	if s == "" {
		return rejected()
	}
	if role == RoleDistrict {
		return Resolution{Name: s, Method: MethodCleaned}
	}

	if target, ok := c.lookupAlias(s); ok {
		return Resolution{Name: target, Method: MethodAlias}
	}
	if c.universe.Contains(s) {
		return Resolution{Name: s, Method: MethodExact}
	}
	if matches := c.matchContainment(s); len(matches) > 0 {
		return Resolution{Name: matches[0], Method: MethodContainment, Candidates: matches}
	}
	return Resolution{Name: s, Method: MethodPassThrough}
}

func (c *Canonicalizer) lookupAlias(s string) (string, bool) {
	target, ok := c.aliases[s]
	return target, ok
}

// matchContainment returns every entity that contains s or is contained by it,
// in universe order. The first one wins.
func (c *Canonicalizer) matchContainment(s string) []string {
	var matches []string
	for _, official := range c.universe.names {
		if strings.Contains(s, official) || strings.Contains(official, s) {
			matches = append(matches, official)
		}
	}
	return matches
}

func rejected() Resolution {
	return Resolution{Name: Unresolved, Method: MethodRejected}
}
