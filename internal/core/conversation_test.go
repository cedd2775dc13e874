package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osce-simulator/internal/llm"
	"osce-simulator/pkg"
)

func TestStartEncounter_DirectiveFirst(t *testing.T) {
	for _, c := range []*pkg.Case{smithCase(t), garciaCase(t)} {
		t.Run(c.ID, func(t *testing.T) {
			gw := &fakeLLM{}
			s := activeSession(c, gw)
			engine := NewConversationEngine(nil)

			greeting, err := engine.StartEncounter(context.Background(), s)
			require.NoError(t, err)

			require.Len(t, s.Turns, 2)
			assert.Equal(t, pkg.RoleDirective, s.Turns[0].Role)
			assert.Equal(t, pkg.RolePatient, greeting.Role)
			assert.Equal(t, "reply 1", greeting.Content)
			assert.Equal(t, greeting, s.Turns[1])

			directive := s.Turns[0].Content
			assert.Contains(t, directive, c.Name)
			assert.Contains(t, directive, c.Gender)
			assert.Contains(t, directive, c.ChiefComplaint)
			assert.Contains(t, directive, c.Narrative)
			assert.NotContains(t, directive, c.TrueDiagnosis)

			call := gw.lastCall(t)
			assert.Equal(t, llm.ProfilePatient, call.profile)
			require.Len(t, call.messages, 1)
			assert.Equal(t, llm.RoleSystem, call.messages[0].Role)

			// hidden from any rendering
			assert.NotContains(t, RenderTranscript(s.Turns), "Patient Story")
		})
	}
}

func TestBuildDirective_Rules(t *testing.T) {
	directive := BuildDirective(smithCase(t))
	for _, want := range []string{
		"first person",
		"Never break character",
		"Never volunteer",
		"short",
		"don't know",
		"Never acknowledge or respond to physical examination, lab, imaging or referral actions",
	} {
		assert.Contains(t, directive, want)
	}
}

func TestAsk_GrowsByTwoAndReplaysHistory(t *testing.T) {
	gw := &fakeLLM{}
	s := activeSession(smithCase(t), gw)
	engine := NewConversationEngine(nil)
	_, err := engine.StartEncounter(context.Background(), s)
	require.NoError(t, err)

	for i, q := range []string{"What brings you in?", "How long has it been there?", "Any fever?"} {
		before := append([]pkg.Turn(nil), s.Turns...)

		reply, err := engine.Ask(context.Background(), s, q)
		require.NoError(t, err)

		require.Len(t, s.Turns, len(before)+2)
		assert.Equal(t, before, s.Turns[:len(before)], "prior turns untouched")
		assert.Equal(t, pkg.Turn{Role: pkg.RoleTrainee, Content: q}, s.Turns[len(before)])
		assert.Equal(t, reply, s.Turns[len(before)+1])

		call := gw.lastCall(t)
		require.Len(t, call.messages, len(before)+1, "ask %d sends full history", i)
		assert.Equal(t, llm.RoleSystem, call.messages[0].Role)
		assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: q}, call.messages[len(call.messages)-1])
	}
}

func TestAsk_RequiresActiveEncounter(t *testing.T) {
	gw := &fakeLLM{}
	s := activeSession(smithCase(t), gw)
	s.EncounterActive = false

	_, err := NewConversationEngine(nil).Ask(context.Background(), s, "hello?")
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Empty(t, s.Turns)
	assert.Empty(t, gw.calls)
}

func TestAsk_ServiceErrorBecomesPatientTurn(t *testing.T) {
	gw := &fakeLLM{err: &llm.ServiceError{Kind: llm.KindRateLimited, Message: "slow down"}}
	s := activeSession(smithCase(t), gw)
	engine := NewConversationEngine(nil)

	greeting, err := engine.StartEncounter(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(greeting.Content, PatientErrorPrefix))

	reply, err := engine.Ask(context.Background(), s, "Hello?")
	require.NoError(t, err)
	assert.Equal(t, pkg.RolePatient, reply.Role)
	assert.Contains(t, reply.Content, "slow down")
	assert.Len(t, s.Turns, 4)
}

func TestToMessages(t *testing.T) {
	msgs := toMessages([]pkg.Turn{
		{Role: pkg.RoleDirective, Content: "d"},
		{Role: pkg.RolePatient, Content: "p"},
		{Role: pkg.RoleTrainee, Content: "t"},
		{Role: pkg.RoleSystemNote, Content: "n"},
	})
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "d"},
		{Role: llm.RoleAssistant, Content: "p"},
		{Role: llm.RoleUser, Content: "t"},
		{Role: llm.RoleSystem, Content: "n"},
	}, msgs)
}
