package core

import (
	"time"

	"osce-simulator/internal/llm"
	"osce-simulator/pkg"
)

// Session holds all mutable state of one trainee.  It is owned by a Machine
// and only touched by the command currently being handled.
type Session struct {
	ID              string
	Phase           pkg.Phase
	Case            *pkg.Case
	Turns           []pkg.Turn
	Results         []pkg.ActionResult
	EncounterActive bool
	StartedAt       time.Time
	Diagnosis       string
	Plan            string
	Feedback        string
	// Gateway is the validated completion client.  It survives resets.
	Gateway llm.Client
}

// NewSession returns a session in the key entry phase.
func NewSession(id string) *Session {
	return &Session{ID: id, Phase: pkg.PhaseKeyEntry}
}

// reset discards everything belonging to the current encounter.  The
// gateway and phase are left to the caller.
func (s *Session) reset() {
	s.Case = nil
	s.Turns = nil
	s.Results = nil
	s.EncounterActive = false
	s.StartedAt = time.Time{}
	s.Diagnosis = ""
	s.Plan = ""
	s.Feedback = ""
}

// Clone returns a deep copy of the session data.  The case pointer and the
// gateway are shared since neither is mutated.
func (s *Session) Clone() Session {
	c := *s
	if s.Turns != nil {
		c.Turns = append([]pkg.Turn(nil), s.Turns...)
	}
	if s.Results != nil {
		c.Results = append([]pkg.ActionResult(nil), s.Results...)
	}
	return c
}

// visibleTurns returns every turn except the directive.
func visibleTurns(turns []pkg.Turn) []pkg.Turn {
	out := make([]pkg.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == pkg.RoleDirective {
			continue
		}
		out = append(out, t)
	}
	return out
}
