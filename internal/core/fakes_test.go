package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"osce-simulator/internal/cases"
	"osce-simulator/internal/llm"
	"osce-simulator/pkg"
)

type fakeCall struct {
	messages []llm.Message
	profile  llm.ProfileName
}

// fakeLLM answers "reply N" for the Nth call unless err is set.
type fakeLLM struct {
	mu    sync.Mutex
	calls []fakeCall
	err   error
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, profile llm.ProfileName) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{messages: append([]llm.Message(nil), messages...), profile: profile})
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("reply %d", len(f.calls)), nil
}

func (f *fakeLLM) lastCall(t *testing.T) fakeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeConnector struct {
	client llm.Client
	err    error
	keys   []string
}

func (c *fakeConnector) Connect(ctx context.Context, apiKey string) (llm.Client, error) {
	c.keys = append(c.keys, apiKey)
	if c.err != nil {
		return nil, c.err
	}
	return c.client, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeRecorder struct {
	records []pkg.EncounterRecord
	err     error
}

func (r *fakeRecorder) RecordEncounter(ctx context.Context, rec pkg.EncounterRecord) error {
	r.records = append(r.records, rec)
	return r.err
}

func builtinCases(t *testing.T) *cases.Repository {
	t.Helper()
	repo, err := cases.Builtin()
	require.NoError(t, err)
	return repo
}

func smithCase(t *testing.T) *pkg.Case {
	t.Helper()
	c, err := builtinCases(t).Get("mr-smith-leg-ulcer")
	require.NoError(t, err)
	return &c
}

func garciaCase(t *testing.T) *pkg.Case {
	t.Helper()
	c, err := builtinCases(t).Get("ms-garcia-chest-pain")
	require.NoError(t, err)
	return &c
}

// activeSession returns a session already in an encounter for c.
func activeSession(c *pkg.Case, gw llm.Client) *Session {
	s := NewSession("s-1")
	s.Phase = pkg.PhaseEncounter
	s.Case = c
	s.Gateway = gw
	s.EncounterActive = true
	return s
}
