package cases

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"osce-simulator/pkg"
)

//go:embed cases.json
var builtinCases []byte

// ErrNotFound is returned when a case id is not in the repository.
var ErrNotFound = errors.New("case not found")

// Repository is a read-only store of cases.  It is populated once and never
// mutated afterwards, so it is safe for concurrent readers.
type Repository struct {
	order []string
	byID  map[string]*pkg.Case
}

// NewRepository validates the given cases and indexes them in definition
// order.
func NewRepository(list []pkg.Case) (*Repository, error) {
	r := &Repository{byID: make(map[string]*pkg.Case, len(list))}
	for i := range list {
		c := list[i]
		if err := validate(&c); err != nil {
			return nil, err
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate case id %q", c.ID)
		}
		r.byID[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
	return r, nil
}

// Load decodes a JSON array of cases.
func Load(data []byte) (*Repository, error) {
	var list []pkg.Case
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode cases: %w", err)
	}
	return NewRepository(list)
}

// Builtin returns the repository of cases shipped with the binary.
func Builtin() (*Repository, error) {
	return Load(builtinCases)
}

// Get returns a copy of the case so callers cannot mutate the repository.
func (r *Repository) Get(id string) (pkg.Case, error) {
	c, ok := r.byID[id]
	if !ok {
		return pkg.Case{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return *c, nil
}

// ListIDs returns case ids in definition order.
func (r *Repository) ListIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns id and title for every case in definition order.
func (r *Repository) List() []pkg.CaseSummary {
	out := make([]pkg.CaseSummary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, pkg.CaseSummary{ID: id, Title: r.byID[id].Title})
	}
	return out
}

func validate(c *pkg.Case) error {
	if c.ID == "" {
		return errors.New("case with empty id")
	}
	if c.Title == "" {
		c.Title = c.Name
	}
	catalogs := map[pkg.CatalogKind]pkg.Catalog{
		pkg.KindPhysicalExam: c.PhysicalExam,
		pkg.KindLab:          c.Labs,
		pkg.KindReferral:     c.Referrals,
	}
	for kind, cat := range catalogs {
		seen := make(map[string]bool, len(cat))
		for _, a := range cat {
			if a.Name == "" {
				return fmt.Errorf("case %q: %s action with empty name", c.ID, kind)
			}
			if seen[a.Name] {
				return fmt.Errorf("case %q: duplicate %s action %q", c.ID, kind, a.Name)
			}
			seen[a.Name] = true
		}
	}
	return nil
}
