package pkg

import "time"

// Case is a static OSCE scenario.  Narrative and TrueDiagnosis are ground
// truth for the patient simulator and the examiner; neither is shown to the
// trainee before feedback.  Cases are never mutated after loading.
type Case struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Name           string  `json:"name"`
	Age            int     `json:"age"`
	Gender         string  `json:"gender"`
	Vitals         string  `json:"vitals"`
	ChiefComplaint string  `json:"chief_complaint"`
	Narrative      string  `json:"patient_story"`
	TrueDiagnosis  string  `json:"true_diagnosis"`
	PhysicalExam   Catalog `json:"physical_exam"`
	Labs           Catalog `json:"lab_results"`
	Referrals      Catalog `json:"referrals"`
	Rubric         *Rubric `json:"expert_assessment,omitempty"`
}

// Action is one scripted clinical action and the result it reveals.
type Action struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// Catalog is an ordered list of actions.  Names are unique within a catalog.
type Catalog []Action

// Lookup returns the scripted result for name.
func (c Catalog) Lookup(name string) (string, bool) {
	for _, a := range c {
		if a.Name == name {
			return a.Result, true
		}
	}
	return "", false
}

// Names returns the action names in definition order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, a := range c {
		names = append(names, a.Name)
	}
	return names
}

// Rubric is the expert answer key used to ground feedback.
type Rubric struct {
	Differentials  []DifferentialRubric `json:"differential_diagnosis_rubric"`
	ManagementPlan ManagementPlanRubric `json:"management_plan_rubric"`
}

// DifferentialRubric describes one candidate diagnosis.
type DifferentialRubric struct {
	Diagnosis      string   `json:"diagnosis"`
	Concordant     []string `json:"concordant_features"`
	Discordant     []string `json:"discordant_features"`
	ExpectedAbsent []string `json:"expected_but_absent"`
}

// ManagementPlanRubric describes the expected management plan.
type ManagementPlanRubric struct {
	TreatmentPrinciples      []string `json:"key_treatment_principles"`
	GoalsOfCare              []string `json:"goals_of_care"`
	PlanOfCareConsiderations []string `json:"plan_of_care_considerations"`
}

// CatalogKind tags which catalog an action came from.  The order of the
// constants is the dispatch priority.
type CatalogKind string

const (
	KindPhysicalExam CatalogKind = "physical_exam"
	KindLab          CatalogKind = "lab"
	KindReferral     CatalogKind = "referral"
)

// Label is the heading used when a result is shown to the trainee.
func (k CatalogKind) Label() string {
	switch k {
	case KindPhysicalExam:
		return "Physical Exam"
	case KindLab:
		return "Lab/Imaging"
	case KindReferral:
		return "Referral"
	default:
		return string(k)
	}
}

// Role describes who authored a turn.
type Role string

const (
	// RoleDirective is the hidden patient-simulator instruction.  It is
	// always the first turn of an encounter and never rendered.
	RoleDirective  Role = "directive"
	RoleTrainee    Role = "trainee"
	RolePatient    Role = "patient"
	RoleSystemNote Role = "system_note"
)

// Turn is one unit of conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ActionResult is the recorded outcome of a performed clinical action.
type ActionResult struct {
	Kind   CatalogKind `json:"kind"`
	Action string      `json:"action"`
	Result string      `json:"result"`
}

// Phase is the state of a session.
type Phase string

const (
	PhaseKeyEntry      Phase = "key_entry"
	PhaseCaseSelection Phase = "case_selection"
	PhaseEncounter     Phase = "encounter"
	PhaseAssessment    Phase = "assessment"
	PhaseFeedback      Phase = "feedback"
)

// CaseSummary is returned when listing cases.
type CaseSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Chart is the part of a case visible to the trainee during an encounter.
type Chart struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Vitals         string `json:"vitals"`
	ChiefComplaint string `json:"chief_complaint"`
}

// ActionMenu lists the available action names per catalog.
type ActionMenu struct {
	PhysicalExam []string `json:"physical_exam"`
	Labs         []string `json:"lab_results"`
	Referrals    []string `json:"referrals"`
}

// SessionView is the read-only rendering of a session handed to a UI.
type SessionView struct {
	SessionID        string         `json:"session_id"`
	Phase            Phase          `json:"phase"`
	CaseID           string         `json:"case_id,omitempty"`
	Title            string         `json:"title,omitempty"`
	Chart            *Chart         `json:"chart,omitempty"`
	Actions          *ActionMenu    `json:"actions,omitempty"`
	Transcript       []Turn         `json:"transcript"`
	Results          []ActionResult `json:"results"`
	EncounterActive  bool           `json:"encounter_active"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Diagnosis        string         `json:"diagnosis,omitempty"`
	Plan             string         `json:"plan,omitempty"`
	Feedback         string         `json:"feedback,omitempty"`
	TrueDiagnosis    string         `json:"true_diagnosis,omitempty"`
}

// EncounterRecord is the archived outcome of a completed encounter.
type EncounterRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	CaseID     string         `json:"case_id"`
	Transcript []Turn         `json:"transcript"`
	Results    []ActionResult `json:"results"`
	Diagnosis  string         `json:"diagnosis"`
	Plan       string         `json:"plan"`
	Feedback   string         `json:"feedback"`
	StartedAt  time.Time      `json:"started_at"`
	CreatedAt  time.Time      `json:"created_at"`
}
