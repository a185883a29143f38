package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBranch is returned for a branch outside the configured catalogue.
var ErrUnknownBranch = errors.New("unknown branch")

// AllBranches selects every branch of the catalogue.
const AllBranches = "all"

// allAliases are the selectors that expand to the whole catalogue.
var allAliases = map[string]bool{AllBranches: true, "todas": true, "*": true}

// Selection is a resolved branch selector.
type Selection struct {
	Label    string // "all" or the branches joined by "-"
	Branches []string
	// Merge is set when more than one branch is selected; the result then
	// carries branch-qualified columns.
	Merge bool
}

// Catalogue is the ordered set of known branches.
type Catalogue struct {
	branches []string
	known    map[string]bool
}

func NewCatalogue(branches []string) Catalogue {
	c := Catalogue{known: make(map[string]bool, len(branches))}
	for _, b := range branches {
		b = strings.TrimSpace(b)
		if b == "" || c.known[b] {
			continue
		}
		c.known[b] = true
		c.branches = append(c.branches, b)
	}
	return c
}

// Branches returns the catalogue in configured order.
func (c Catalogue) Branches() []string {
	return append([]string(nil), c.branches...)
}

// Resolve expands a selector: "all" (or "Todas"), a single branch or a comma
// separated list. An empty selector means all.
func (c Catalogue) Resolve(selector string) (Selection, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || allAliases[strings.ToLower(selector)] {
		if len(c.branches) == 0 {
			return Selection{}, fmt.Errorf("%w: no branches configured", ErrUnknownBranch)
		}
		return Selection{Label: AllBranches, Branches: c.Branches(), Merge: true}, nil
	}

	var branches []string
	seen := make(map[string]bool)
	for _, b := range strings.Split(selector, ",") {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		if !c.known[b] {
			return Selection{}, fmt.Errorf("%w: %s", ErrUnknownBranch, b)
		}
		seen[b] = true
		branches = append(branches, b)
	}
	if len(branches) == 0 {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownBranch, selector)
	}
	return Selection{
		Label:    strings.Join(branches, "-"),
		Branches: branches,
		Merge:    len(branches) > 1,
	}, nil
}
