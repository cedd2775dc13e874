package db

import (
	"context"
	"fmt"

	"osce-simulator/pkg"
)

// Archive stores completed encounters and announces them.  It satisfies
// core.Recorder.
type Archive struct {
	Repo     *Repository
	Notifier *Notifier
}

// NewArchive constructs an Archive.  notifier may be nil.
func NewArchive(repo *Repository, notifier *Notifier) *Archive {
	return &Archive{Repo: repo, Notifier: notifier}
}

// RecordEncounter saves rec and then notifies listeners.  A notify failure
// is reported after the record has been saved.
func (a *Archive) RecordEncounter(ctx context.Context, rec pkg.EncounterRecord) error {
	if err := a.Repo.SaveEncounter(ctx, &rec); err != nil {
		return err
	}
	if a.Notifier == nil {
		return nil
	}
	if err := a.Notifier.Notify(ctx, rec.ID); err != nil {
		return fmt.Errorf("notify encounter %s: %w", rec.ID, err)
	}
	return nil
}
