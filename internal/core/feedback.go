package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"osce-simulator/internal/llm"
	"osce-simulator/pkg"
)

// FeedbackEvaluator coordinates the examiner call that grades a submitted
// assessment.  It always returns text: on failure the text is the error.
type FeedbackEvaluator struct {
	logger *zap.Logger
}

// NewFeedbackEvaluator constructs a FeedbackEvaluator.
func NewFeedbackEvaluator(logger *zap.Logger) *FeedbackEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackEvaluator{logger: logger}
}

// Evaluate sends a single evaluator-profile request and returns the
// feedback body.
func (e *FeedbackEvaluator) Evaluate(ctx context.Context, client llm.Client, c *pkg.Case, transcript []pkg.Turn, diagnosis, plan string) string {
	prompt := BuildEvaluationPrompt(c, transcript, diagnosis, plan)
	if client == nil {
		return FeedbackErrorPrefix + " no completion client"
	}
	resp, err := client.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.ProfileEvaluator)
	if err != nil {
		e.logger.Warn("feedback generation failed",
			zap.String("case_id", c.ID),
			zap.String("profile", string(llm.ProfileEvaluator)),
			zap.String("kind", string(llm.KindOf(err))),
			zap.Error(err))
		return fmt.Sprintf("%s %v", FeedbackErrorPrefix, err)
	}
	return resp
}

// BuildEvaluationPrompt selects the rubric prompt when the case carries a
// rubric and the generic prompt otherwise.
func BuildEvaluationPrompt(c *pkg.Case, transcript []pkg.Turn, diagnosis, plan string) string {
	if c.Rubric != nil {
		return buildRubricPrompt(c, transcript, diagnosis, plan)
	}
	return buildGenericPrompt(c, transcript, diagnosis, plan)
}

func buildRubricPrompt(c *pkg.Case, transcript []pkg.Turn, diagnosis, plan string) string {
	return fmt.Sprintf(RubricEvaluationTemplate,
		c.TrueDiagnosis,
		RenderDifferentials(c.Rubric.Differentials),
		RenderManagementPlan(c.Rubric.ManagementPlan),
		RenderTranscript(transcript),
		diagnosis,
		plan,
	)
}

func buildGenericPrompt(c *pkg.Case, transcript []pkg.Turn, diagnosis, plan string) string {
	return fmt.Sprintf(GenericEvaluationTemplate,
		c.TrueDiagnosis,
		RenderTranscript(transcript),
		diagnosis,
		plan,
	)
}

// RenderTranscript writes one "Speaker: text" line per turn.  Directive
// turns are skipped; system notes stay in place.
func RenderTranscript(turns []pkg.Turn) string {
	var b strings.Builder
	for _, t := range visibleTurns(turns) {
		b.WriteString(speaker(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(no conversation took place)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func speaker(r pkg.Role) string {
	switch r {
	case pkg.RoleTrainee:
		return "Trainee"
	case pkg.RolePatient:
		return "Patient"
	case pkg.RoleSystemNote:
		return "System note"
	default:
		return string(r)
	}
}

// RenderDifferentials lists each rubric diagnosis with its features.
func RenderDifferentials(ds []pkg.DifferentialRubric) string {
	blocks := make([]string, 0, len(ds))
	for _, d := range ds {
		var b strings.Builder
		fmt.Fprintf(&b, "Diagnosis: %s\n", d.Diagnosis)
		fmt.Fprintf(&b, "Concordant features: %s\n", joinOrNone(d.Concordant))
		fmt.Fprintf(&b, "Discordant features: %s\n", joinOrNone(d.Discordant))
		fmt.Fprintf(&b, "Expected but absent: %s", joinOrNone(d.ExpectedAbsent))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// RenderManagementPlan lists the three management plan rubric sections.
func RenderManagementPlan(p pkg.ManagementPlanRubric) string {
	var b strings.Builder
	writeSection(&b, "Key Treatment Principles", p.TreatmentPrinciples)
	b.WriteString("\n")
	writeSection(&b, "Goals of Care", p.GoalsOfCare)
	b.WriteString("\n")
	writeSection(&b, "Plan of Care Considerations", p.PlanOfCareConsiderations)
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(items) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}
