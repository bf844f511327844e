// Package executor carries out approved proposals against Anki and the
// configured todo backend.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vthunder/toolbot/internal/integrations/anki"
	"github.com/vthunder/toolbot/internal/ledger"
	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/proposal"
	"github.com/vthunder/toolbot/internal/tasks"
)

// Flashcards is the flashcard backend
type Flashcards interface {
	CreateBasic(ctx context.Context, front, back, deck string, tags []string) (int64, error)
	CreateReversed(ctx context.Context, front, back, deck string, tags []string) (int64, error)
	CreateCloze(ctx context.Context, text, deck string, tags []string) (int64, error)
	Sync(ctx context.Context) error
}

// Ledger remembers successful executions
type Ledger interface {
	Lookup(ctx context.Context, proposalID string) (ledger.Record, bool, error)
	Put(ctx context.Context, r ledger.Record) error
}

// Config wires the executor
type Config struct {
	Flashcards    Flashcards // nil when Anki is disabled
	Todos         tasks.Backend
	Ledger        Ledger // optional
	AnkiURL       string
	DeckNamespace string
	Timeout       time.Duration
}

// Outcome is the user-visible result of an execution
type Outcome struct {
	Text       string
	OK         bool
	ExternalID string
	Repeat     bool // already executed earlier; nothing was created
}

// Executor dispatches proposals to backends
type Executor struct {
	cfg Config
}

// New creates an executor
func New(cfg Config) *Executor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Executor{cfg: cfg}
}

// Approval identifies the proposal message being approved
type Approval struct {
	ProposalID string
	RoomID     string
	ApprovedBy string
}

// ExecuteOnce runs a proposal unless the ledger says it already succeeded.
// Failures are not recorded so the user can react again to retry.
func (e *Executor) ExecuteOnce(ctx context.Context, a Approval, p proposal.Proposal) Outcome {
	if e.cfg.Ledger != nil {
		rec, ok, err := e.cfg.Ledger.Lookup(ctx, a.ProposalID)
		if err != nil {
			logging.Warn("executor", "ledger lookup %s: %v", a.ProposalID, err)
		} else if ok {
			return Outcome{
				Text:       fmt.Sprintf("ℹ️ Already created (%s id: %s)", rec.Kind, rec.ExternalID),
				OK:         true,
				ExternalID: rec.ExternalID,
				Repeat:     true,
			}
		}
	}

	out := e.Execute(ctx, p)
	if out.OK && e.cfg.Ledger != nil {
		err := e.cfg.Ledger.Put(ctx, ledger.Record{
			ProposalID: a.ProposalID,
			RoomID:     a.RoomID,
			Kind:       p.Kind(),
			ExternalID: out.ExternalID,
			Summary:    summary(p),
			ApprovedBy: a.ApprovedBy,
		})
		if err != nil {
			logging.Warn("executor", "ledger put %s: %v", a.ProposalID, err)
		}
	}
	return out
}

// Execute runs a proposal once and converts any failure into a message
func (e *Executor) Execute(ctx context.Context, p proposal.Proposal) Outcome {
	switch v := p.(type) {
	case *proposal.Flashcard:
		return e.flashcard(ctx, v)
	case *proposal.Todo:
		return e.todo(ctx, v)
	default:
		return Outcome{Text: "⚠️ Unknown proposal type."}
	}
}

func (e *Executor) flashcard(ctx context.Context, fc *proposal.Flashcard) Outcome {
	if e.cfg.Flashcards == nil {
		return Outcome{Text: "⚠️ Anki integration is disabled. Set ENABLE_ANKI=true to enable."}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	deck := anki.Namespaced(e.cfg.DeckNamespace, fc.Deck)
	var (
		id  int64
		err error
	)
	switch fc.CardType {
	case proposal.CardBasic, "":
		id, err = e.cfg.Flashcards.CreateBasic(ctx, fc.Front, fc.Back, deck, fc.Tags)
	case proposal.CardReversed:
		id, err = e.cfg.Flashcards.CreateReversed(ctx, fc.Front, fc.Back, deck, fc.Tags)
	case proposal.CardCloze:
		id, err = e.cfg.Flashcards.CreateCloze(ctx, fc.Front, deck, fc.Tags)
	default:
		return Outcome{Text: fmt.Sprintf("❌ Failed to create flashcard: unknown card_type %q", fc.CardType)}
	}
	if err != nil {
		logging.Error("executor", "anki-connect: %v", err)
		return Outcome{Text: fmt.Sprintf("❌ Failed to create flashcard: %v\n\n"+
			"**Troubleshooting:**\n"+
			"1. Make sure Anki is running\n"+
			"2. Install Anki-Connect add-on (code: 2055492159)\n"+
			"3. Restart Anki after installing\n"+
			"4. Check Anki-Connect is accessible at %s", err, e.cfg.AnkiURL)}
	}

	if err := e.cfg.Flashcards.Sync(ctx); err != nil {
		logging.Warn("executor", "anki sync failed (note %d was still created): %v", id, err)
	}
	return Outcome{
		Text:       fmt.Sprintf("✅ Flashcard created in Anki (note id: %d)", id),
		OK:         true,
		ExternalID: strconv.FormatInt(id, 10),
	}
}

func (e *Executor) todo(ctx context.Context, td *proposal.Todo) Outcome {
	if e.cfg.Todos == nil {
		return Outcome{Text: "⚠️ No todo backend is configured."}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var projectID string
	if td.ProjectName != "" {
		project, err := tasks.GetOrCreateProject(ctx, e.cfg.Todos, td.ProjectName)
		if err != nil {
			return failed(err)
		}
		projectID = project.ID
	}

	task, err := e.cfg.Todos.CreateTask(ctx, tasks.NewTask{
		Content:   td.Content,
		DueString: td.DueString,
		Priority:  td.Priority,
		Labels:    td.Labels,
		ProjectID: projectID,
	})
	if err != nil {
		return failed(err)
	}
	return Outcome{
		Text:       fmt.Sprintf("✅ Todo created in %s (task id: %s)", e.cfg.Todos.Name(), task.ID),
		OK:         true,
		ExternalID: task.ID,
	}
}

func failed(err error) Outcome {
	logging.Error("executor", "failed to execute proposal: %v", err)
	return Outcome{Text: fmt.Sprintf("❌ Failed to create: %v", err)}
}

func summary(p proposal.Proposal) string {
	switch v := p.(type) {
	case *proposal.Flashcard:
		return logging.Truncate(v.Front, 120)
	case *proposal.Todo:
		return logging.Truncate(v.Content, 120)
	}
	return ""
}
