package core

import (
	"fmt"

	"osce-simulator/pkg"
)

// ActionDispatcher resolves clinical actions against the current case.
type ActionDispatcher struct{}

// NewActionDispatcher constructs an ActionDispatcher.
func NewActionDispatcher() *ActionDispatcher { return &ActionDispatcher{} }

type kindedCatalog struct {
	kind    pkg.CatalogKind
	catalog pkg.Catalog
}

// catalogs returns the case's catalogs in dispatch priority: exam, lab,
// referral.
func catalogs(c *pkg.Case) []kindedCatalog {
	return []kindedCatalog{
		{pkg.KindPhysicalExam, c.PhysicalExam},
		{pkg.KindLab, c.Labs},
		{pkg.KindReferral, c.Referrals},
	}
}

// Resolve finds name in the first catalog that defines it.
func Resolve(c *pkg.Case, name string) (pkg.ActionResult, bool) {
	for _, kc := range catalogs(c) {
		if result, ok := kc.catalog.Lookup(name); ok {
			return pkg.ActionResult{Kind: kc.kind, Action: name, Result: result}, true
		}
	}
	return pkg.ActionResult{}, false
}

// Perform records the scripted result of name and appends a system note to
// the conversation.  The note never carries the result text.  An unknown
// action yields a nil result and an unavailability note; it is not an
// error.  Repeated actions are recorded again.
func (d *ActionDispatcher) Perform(s *Session, name string) (*pkg.ActionResult, error) {
	if !s.EncounterActive || s.Case == nil {
		return nil, invalidState("perform action", s.Phase)
	}
	res, ok := Resolve(s.Case, name)
	if !ok {
		s.Turns = append(s.Turns, pkg.Turn{
			Role:    pkg.RoleSystemNote,
			Content: fmt.Sprintf(ActionUnavailableNote, name),
		})
		return nil, nil
	}
	s.Results = append(s.Results, res)
	s.Turns = append(s.Turns, pkg.Turn{
		Role:    pkg.RoleSystemNote,
		Content: fmt.Sprintf(ActionPerformedNote, res.Kind.Label(), name),
	})
	return &res, nil
}
