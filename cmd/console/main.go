package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"osce-simulator/internal/cases"
	"osce-simulator/internal/config"
	"osce-simulator/internal/core"
	"osce-simulator/internal/db"
	"osce-simulator/internal/llm"
	"osce-simulator/internal/logger"
	"osce-simulator/pkg"
)

const help = `Commands:
  key <api key>     validate an API key
  cases             list cases
  case <id>         start an encounter
  ask <question>    talk to the patient
  do <action>       perform an exam, lab or referral (aliases: exam, lab, refer)
  end               finish the interview
  submit            enter differential diagnosis and management plan
  back              return to case selection
  status            show the chart and remaining time
  quit              exit`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	// logs go to stderr so they stay out of the conversation
	log, err := logger.New(cfg.Log.Level, "console", "osce-console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	caseRepo, err := cases.Builtin()
	if err != nil {
		log.Fatal("failed to load cases", zap.Error(err))
	}

	ctx := context.Background()
	deps := core.Deps{
		Cases:     caseRepo,
		Connector: llm.NewOpenAIConnector(cfg.LLMConfig()),
		Logger:    log,
		Budget:    cfg.EncounterBudget,
	}
	if cfg.Database.URL != "" {
		conn, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal("failed to open encounter archive", zap.Error(err))
		}
		defer conn.Close()
		notifier := db.NewNotifier(conn, cfg.Database.URL, cfg.Database.NotifyChannel)
		deps.Recorder = db.NewArchive(db.NewRepository(conn), notifier)
	}

	c := newConsole(core.NewMachine("console", deps), os.Stdin, os.Stdout)
	c.run(ctx, cfg.LLM.APIKey)
}

type console struct {
	machine *core.Machine
	in      *bufio.Scanner
	out     io.Writer
}

func newConsole(m *core.Machine, in io.Reader, out io.Writer) *console {
	return &console{machine: m, in: bufio.NewScanner(in), out: out}
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// run reads commands until quit or end of input.  A non-empty apiKey is
// submitted before the first prompt.
func (c *console) run(ctx context.Context, apiKey string) {
	c.printf("OSCE simulator ready.\n%s\n", help)
	if apiKey != "" {
		c.submitKey(ctx, apiKey)
	}
	for {
		c.printf("[%s]> ", c.machine.Phase())
		if !c.in.Scan() {
			return
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		if cmd == "quit" || cmd == "exit" {
			return
		}
		c.dispatch(ctx, cmd, arg)
		c.checkClock()
	}
}

func (c *console) dispatch(ctx context.Context, cmd, arg string) {
	switch cmd {
	case "help":
		c.printf("%s\n", help)
	case "key":
		c.submitKey(ctx, arg)
	case "cases":
		for _, s := range c.machine.Cases() {
			c.printf("  %-24s %s\n", s.ID, s.Title)
		}
	case "case":
		greeting, err := c.machine.SelectCase(ctx, arg)
		if c.report(err) {
			return
		}
		c.status()
		c.printf("Patient: %s\n", greeting.Content)
	case "ask":
		reply, err := c.machine.Ask(ctx, arg)
		if c.report(err) {
			return
		}
		c.printf("Patient: %s\n", reply.Content)
	case "do", "exam", "lab", "refer":
		res, err := c.machine.PerformAction(arg)
		if c.report(err) {
			return
		}
		if res == nil {
			c.printf("Action not available for this case: %s\n", arg)
			return
		}
		c.printf("%s | %s\n  %s\n", res.Kind.Label(), res.Action, res.Result)
	case "end":
		if c.report(c.machine.EndEncounter()) {
			return
		}
		c.printf("Encounter ended. Type 'submit' to enter your assessment.\n")
	case "submit":
		c.submit(ctx)
	case "back":
		if c.report(c.machine.ReturnToSelection()) {
			return
		}
		c.printf("Choose another case with 'cases' and 'case <id>'.\n")
	case "status":
		c.status()
	default:
		c.printf("Unknown command %q. Type 'help'.\n", cmd)
	}
}

func (c *console) submitKey(ctx context.Context, key string) {
	if c.report(c.machine.SubmitCredential(ctx, key)) {
		return
	}
	c.printf("API key accepted. Type 'cases' to list cases.\n")
}

func (c *console) submit(ctx context.Context) {
	if c.machine.Phase() != pkg.PhaseAssessment {
		c.report(fmt.Errorf("%w: submit is only available after the encounter", core.ErrInvalidState))
		return
	}
	diagnosis := c.prompt("Differential diagnosis: ")
	plan := c.prompt("Management plan: ")
	c.printf("Evaluating...\n")
	feedback, err := c.machine.SubmitAssessment(ctx, diagnosis, plan)
	if c.report(err) {
		return
	}
	v := c.machine.Observe()
	c.printf("\n--- Feedback ---\n%s\n\nTrue diagnosis: %s\n", feedback, v.TrueDiagnosis)
}

func (c *console) prompt(label string) string {
	c.printf("%s", label)
	if !c.in.Scan() {
		return ""
	}
	return strings.TrimSpace(c.in.Text())
}

func (c *console) status() {
	v := c.machine.Observe()
	c.printf("Phase: %s\n", v.Phase)
	if v.Chart != nil {
		c.printf("%s\n  %s, %d, %s\n  Vitals: %s\n  Chief complaint: %s\n",
			v.Title, v.Chart.Name, v.Chart.Age, v.Chart.Gender, v.Chart.Vitals, v.Chart.ChiefComplaint)
	}
	if v.Phase == pkg.PhaseEncounter {
		c.printf("Time remaining: %s\n", formatRemaining(time.Duration(v.RemainingSeconds)*time.Second))
		if v.Actions != nil {
			c.printf("  %s: %s\n", pkg.KindPhysicalExam.Label(), strings.Join(v.Actions.PhysicalExam, ", "))
			c.printf("  %s: %s\n", pkg.KindLab.Label(), strings.Join(v.Actions.Labs, ", "))
			c.printf("  %s: %s\n", pkg.KindReferral.Label(), strings.Join(v.Actions.Referrals, ", "))
		}
	}
}

// checkClock tells the trainee when the encounter was closed by the timer.
func (c *console) checkClock() {
	before := c.machine.Phase()
	after := c.machine.Observe().Phase
	if before == pkg.PhaseEncounter && after == pkg.PhaseAssessment {
		c.printf("Time is up. Type 'submit' to enter your assessment.\n")
	}
}

// report prints err and reports whether there was one.
func (c *console) report(err error) bool {
	if err == nil {
		return false
	}
	var credErr *core.CredentialError
	switch {
	case errors.As(err, &credErr):
		c.printf("%s\n", credErr.Error())
	case errors.Is(err, core.ErrInvalidState):
		c.printf("Not now: %v\n", err)
	default:
		c.printf("Error: %v\n", err)
	}
	return true
}

func formatRemaining(d time.Duration) string {
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%02d:%02d", m, s)
}
