package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"osce-simulator/internal/cases"
	"osce-simulator/internal/llm"
	"osce-simulator/pkg"
)

// CaseSource is the read side of the case repository.
type CaseSource interface {
	Get(id string) (pkg.Case, error)
	List() []pkg.CaseSummary
}

// Recorder archives completed encounters.  Failures never affect the
// session.
type Recorder interface {
	RecordEncounter(ctx context.Context, rec pkg.EncounterRecord) error
}

// Deps bundles the collaborators shared by every Machine.
type Deps struct {
	Cases     CaseSource
	Connector llm.Connector
	Recorder  Recorder
	Logger    *zap.Logger
	// Budget is the encounter time limit; zero means DefaultEncounterBudget.
	Budget time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Machine is the session state machine.  It accepts one command at a time
// and completes it, including any blocking completion call, before the
// next one runs.
type Machine struct {
	mu           sync.Mutex
	session      *Session
	cases        CaseSource
	connector    llm.Connector
	recorder     Recorder
	conversation *ConversationEngine
	actions      *ActionDispatcher
	evaluator    *FeedbackEvaluator
	budget       time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewMachine returns a machine for a new session in the key entry phase.
func NewMachine(id string, deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	budget := deps.Budget
	if budget <= 0 {
		budget = DefaultEncounterBudget
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Machine{
		session:      NewSession(id),
		cases:        deps.Cases,
		connector:    deps.Connector,
		recorder:     deps.Recorder,
		conversation: NewConversationEngine(logger),
		actions:      NewActionDispatcher(),
		evaluator:    NewFeedbackEvaluator(logger),
		budget:       budget,
		now:          now,
		logger:       logger.With(zap.String("session_id", id)),
	}
}

// ID returns the session id.
func (m *Machine) ID() string { return m.session.ID }

// Phase returns the current phase.
func (m *Machine) Phase() pkg.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Phase
}

// Snapshot returns a deep copy of the session.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Cases lists the selectable cases.
func (m *Machine) Cases() []pkg.CaseSummary { return m.cases.List() }

// SubmitCredential validates apiKey.  On success the session moves to case
// selection; on failure it stays in key entry and a *CredentialError is
// returned.
func (m *Machine) SubmitCredential(ctx context.Context, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.Phase != pkg.PhaseKeyEntry {
		return invalidState("submit credential", s.Phase)
	}
	client, err := m.connector.Connect(ctx, apiKey)
	if err != nil {
		m.logger.Warn("credential rejected", zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
		return &CredentialError{Err: err}
	}
	s.Gateway = client
	m.transition(pkg.PhaseCaseSelection, "credential validated")
	return nil
}

// SelectCase resets the session, starts the encounter for caseID and
// returns the patient's greeting.
func (m *Machine) SelectCase(ctx context.Context, caseID string) (pkg.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.Phase != pkg.PhaseCaseSelection {
		return pkg.Turn{}, invalidState("select case", s.Phase)
	}
	c, err := m.cases.Get(caseID)
	if err != nil {
		if errors.Is(err, cases.ErrNotFound) {
			return pkg.Turn{}, fmt.Errorf("%w: case %q", ErrNotFound, caseID)
		}
		return pkg.Turn{}, err
	}

	s.reset()
	s.Case = &c
	s.EncounterActive = true
	s.StartedAt = m.now()
	m.transition(pkg.PhaseEncounter, "case selected", zap.String("case_id", caseID))
	return m.conversation.StartEncounter(ctx, s)
}

// Ask sends the trainee's question to the patient.
func (m *Machine) Ask(ctx context.Context, question string) (pkg.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireEncounter("ask"); err != nil {
		return pkg.Turn{}, err
	}
	if strings.TrimSpace(question) == "" {
		return pkg.Turn{}, ErrEmptyQuestion
	}
	return m.conversation.Ask(ctx, m.session, question)
}

// PerformAction runs a scripted clinical action.  A nil result means the
// action is not available; the trainee sees a system note saying so.
func (m *Machine) PerformAction(name string) (*pkg.ActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireEncounter("perform action"); err != nil {
		return nil, err
	}
	res, err := m.actions.Perform(m.session, name)
	if err != nil {
		return nil, err
	}
	if res == nil {
		m.logger.Info("action not available", zap.String("action", name))
	}
	return res, nil
}

// EndEncounter moves an encounter to assessment.  It is valid whether or
// not any turns exist and whether or not the clock has run out.
func (m *Machine) EndEncounter() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.Phase != pkg.PhaseEncounter {
		return invalidState("end encounter", s.Phase)
	}
	m.finishEncounter("ended by trainee")
	return nil
}

// SubmitAssessment grades the trainee's diagnosis and plan.  Blank fields
// are rejected in place.  Completion failures are returned as the feedback
// text, never as an error.
func (m *Machine) SubmitAssessment(ctx context.Context, diagnosis, plan string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.Phase != pkg.PhaseAssessment {
		return "", invalidState("submit assessment", s.Phase)
	}
	if strings.TrimSpace(diagnosis) == "" || strings.TrimSpace(plan) == "" {
		return "", ErrEmptySubmission
	}

	feedback := m.evaluator.Evaluate(ctx, s.Gateway, s.Case, s.Turns, diagnosis, plan)
	s.Diagnosis = diagnosis
	s.Plan = plan
	s.Feedback = feedback
	m.transition(pkg.PhaseFeedback, "assessment submitted")
	m.archive(ctx)
	return feedback, nil
}

// ReturnToSelection clears the finished encounter and keeps the credential.
func (m *Machine) ReturnToSelection() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.Phase != pkg.PhaseFeedback {
		return invalidState("return to selection", s.Phase)
	}
	s.reset()
	m.transition(pkg.PhaseCaseSelection, "returned to selection")
	return nil
}

// Observe polls the clock and returns the trainee-facing view.
func (m *Machine) Observe() pkg.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pollClock()
	return m.view()
}

// Remaining returns the time left in the current encounter, or zero outside
// of one.
func (m *Machine) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining()
}

func (m *Machine) remaining() time.Duration {
	s := m.session
	if s.Phase != pkg.PhaseEncounter || s.StartedAt.IsZero() {
		return 0
	}
	return Remaining(s.StartedAt, m.now(), m.budget)
}

// requireEncounter polls the clock and then checks the phase.  An encounter
// whose time ran out is moved to assessment before the command is refused.
func (m *Machine) requireEncounter(command string) error {
	if m.pollClock() {
		return fmt.Errorf("%w: %s refused, encounter time expired", ErrInvalidState, command)
	}
	if m.session.Phase != pkg.PhaseEncounter {
		return invalidState(command, m.session.Phase)
	}
	return nil
}

// pollClock forces the encounter into assessment once its budget is used
// up.  It reports whether it did so.
func (m *Machine) pollClock() bool {
	s := m.session
	if s.Phase != pkg.PhaseEncounter || !s.EncounterActive {
		return false
	}
	if !Expired(s.StartedAt, m.now(), m.budget) {
		return false
	}
	m.finishEncounter("time expired")
	return true
}

func (m *Machine) finishEncounter(reason string) {
	m.session.EncounterActive = false
	m.transition(pkg.PhaseAssessment, reason)
}

func (m *Machine) transition(to pkg.Phase, reason string, fields ...zap.Field) {
	from := m.session.Phase
	m.session.Phase = to
	m.logger.Info("phase transition",
		append([]zap.Field{
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("reason", reason),
		}, fields...)...)
}

func (m *Machine) archive(ctx context.Context) {
	if m.recorder == nil {
		return
	}
	s := m.session
	rec := pkg.EncounterRecord{
		ID:         uuid.NewString(),
		SessionID:  s.ID,
		CaseID:     s.Case.ID,
		Transcript: visibleTurns(s.Turns),
		Results:    append([]pkg.ActionResult(nil), s.Results...),
		Diagnosis:  s.Diagnosis,
		Plan:       s.Plan,
		Feedback:   s.Feedback,
		StartedAt:  s.StartedAt,
		CreatedAt:  m.now(),
	}
	if err := m.recorder.RecordEncounter(ctx, rec); err != nil {
		m.logger.Error("failed to archive encounter", zap.String("encounter_id", rec.ID), zap.Error(err))
	}
}

func (m *Machine) view() pkg.SessionView {
	s := m.session
	v := pkg.SessionView{
		SessionID:       s.ID,
		Phase:           s.Phase,
		Transcript:      visibleTurns(s.Turns),
		Results:         make([]pkg.ActionResult, 0, len(s.Results)),
		EncounterActive: s.EncounterActive,
		Diagnosis:       s.Diagnosis,
		Plan:            s.Plan,
		Feedback:        s.Feedback,
	}
	// newest result first
	for i := len(s.Results) - 1; i >= 0; i-- {
		v.Results = append(v.Results, s.Results[i])
	}
	if c := s.Case; c != nil {
		v.CaseID = c.ID
		v.Title = c.Title
		v.Chart = &pkg.Chart{
			Name:           c.Name,
			Age:            c.Age,
			Gender:         c.Gender,
			Vitals:         c.Vitals,
			ChiefComplaint: c.ChiefComplaint,
		}
		v.Actions = &pkg.ActionMenu{
			PhysicalExam: c.PhysicalExam.Names(),
			Labs:         c.Labs.Names(),
			Referrals:    c.Referrals.Names(),
		}
		if s.Phase == pkg.PhaseFeedback {
			v.TrueDiagnosis = c.TrueDiagnosis
		}
	}
	v.RemainingSeconds = int(m.remaining() / time.Second)
	return v
}
