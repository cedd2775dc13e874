package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"osce-simulator/internal/llm"
	"osce-simulator/pkg"
)

// ConversationEngine mediates all patient turns.  Every reply is generated
// over the entire turn history, directive first.  Completion failures
// become a visible patient turn rather than an error.
type ConversationEngine struct {
	logger *zap.Logger
}

// NewConversationEngine constructs a ConversationEngine.
func NewConversationEngine(logger *zap.Logger) *ConversationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationEngine{logger: logger}
}

// BuildDirective renders the hidden patient-simulator instruction for c.
func BuildDirective(c *pkg.Case) string {
	return fmt.Sprintf(PatientDirectiveTemplate, c.Name, c.Age, c.Gender, c.ChiefComplaint, c.Narrative)
}

// StartEncounter replaces the session's turns with the directive and the
// patient's greeting, and returns the greeting.
func (e *ConversationEngine) StartEncounter(ctx context.Context, s *Session) (pkg.Turn, error) {
	if s.Case == nil {
		return pkg.Turn{}, invalidState("start encounter without a case", s.Phase)
	}
	s.Turns = []pkg.Turn{{Role: pkg.RoleDirective, Content: BuildDirective(s.Case)}}
	return e.reply(ctx, s), nil
}

// Ask appends the trainee's question and the patient's reply.
func (e *ConversationEngine) Ask(ctx context.Context, s *Session, question string) (pkg.Turn, error) {
	if !s.EncounterActive {
		return pkg.Turn{}, invalidState("ask", s.Phase)
	}
	s.Turns = append(s.Turns, pkg.Turn{Role: pkg.RoleTrainee, Content: question})
	return e.reply(ctx, s), nil
}

func (e *ConversationEngine) reply(ctx context.Context, s *Session) pkg.Turn {
	var content string
	var err error
	if s.Gateway == nil {
		err = errors.New("no completion client")
	} else {
		content, err = s.Gateway.Complete(ctx, toMessages(s.Turns), llm.ProfilePatient)
	}
	if err != nil {
		e.logger.Warn("patient reply failed",
			zap.String("session_id", s.ID),
			zap.String("profile", string(llm.ProfilePatient)),
			zap.String("kind", string(llm.KindOf(err))),
			zap.Error(err))
		content = fmt.Sprintf("%s %v", PatientErrorPrefix, err)
	}
	turn := pkg.Turn{Role: pkg.RolePatient, Content: content}
	s.Turns = append(s.Turns, turn)
	return turn
}

// toMessages maps turns onto chat roles in order.  System notes travel as
// system messages so the patient model sees them but does not answer them.
func toMessages(turns []pkg.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		var role string
		switch t.Role {
		case pkg.RoleDirective, pkg.RoleSystemNote:
			role = llm.RoleSystem
		case pkg.RolePatient:
			role = llm.RoleAssistant
		default:
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}
