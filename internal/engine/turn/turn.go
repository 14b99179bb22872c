// Package turn orchestrates one player/response exchange end to end:
// classify intent, assemble bounded context, invoke the specialist under
// retry policy, validate the structured payload, merge scene state, and
// re-evaluate combat readiness.
//
// A session processes turns strictly serially. All session mutation happens
// after validation succeeds; a failed or abandoned call never leaves a
// partially applied turn behind.
package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberloom/emberloom/internal/core/dice"
	"github.com/emberloom/emberloom/internal/engine/assemble"
	"github.com/emberloom/emberloom/internal/engine/backend"
	"github.com/emberloom/emberloom/internal/engine/budget"
	"github.com/emberloom/emberloom/internal/engine/combat"
	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/payload"
	"github.com/emberloom/emberloom/internal/engine/resilience"
	"github.com/emberloom/emberloom/internal/engine/router"
	"github.com/emberloom/emberloom/internal/engine/scene"
	"github.com/emberloom/emberloom/internal/errors"
	"github.com/emberloom/emberloom/internal/storage"
	"github.com/emberloom/emberloom/internal/telemetry"
)

// recapTurns bounds how many prior turns feed the assembler's recap.
const recapTurns = 8

// Record is one committed player/response exchange. Immutable once appended;
// the session turn log is append-only.
type Record struct {
	TurnNumber int
	UserInput  string
	Response   string
	Intent     intent.Intent
	Status     resilience.Status
	// Summary is the short recap line carried into later turns' context.
	Summary   string
	Timestamp time.Time
}

// Session owns one narrative session's state. It is exclusively owned: no
// other session's turn may read or mutate it. Its mutex serializes turns
// within the session only.
type Session struct {
	mu sync.Mutex

	CampaignID string
	ID         string
	Scene      scene.State
	Turns      []Record
	Memories   []scene.MemoryWrite
	Plan       *combat.Plan
}

// NewSession creates a session with an initial scene.
func NewSession(campaignID, sessionID string, initial scene.State) *Session {
	return &Session{CampaignID: campaignID, ID: sessionID, Scene: initial}
}

// Commit is everything a committed turn produces for persistence.
type Commit struct {
	CampaignID string
	SessionID  string
	Record     Record
	Scene      scene.State
	// Memories holds only the writes appended by this turn.
	Memories []scene.MemoryWrite
	Plan     *combat.Plan
}

// Persister stores committed turns. Persistence failures do not roll back
// the in-memory commit.
type Persister interface {
	CommitTurn(ctx context.Context, commit Commit) error
}

// Result is the outcome of one turn.
type Result struct {
	Record          Record
	Status          resilience.Status
	Intent          intent.Intent
	RouterFellBack  bool
	PayloadRejected bool
	PlanTransition  *combat.Transition
}

// Config assembles an engine. Zero values fall back to conservative
// defaults.
type Config struct {
	Generator backend.Generator
	Caps      budget.Caps
	Prompts   PromptConfig
	Persister Persister
	Emitter   *telemetry.Emitter

	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	DiscardAfter   int
	// TurnDeadline bounds one whole turn across both external calls.
	TurnDeadline time.Duration
}

// Engine runs turns. Construct with New; the zero value is not usable.
type Engine struct {
	generator backend.Generator
	assembler *assemble.Assembler
	router    *router.Router
	executor  *resilience.Executor
	evaluator combat.Evaluator
	prompts   PromptConfig
	tools     map[intent.Intent][]backend.Tool
	persister Persister
	emitter   *telemetry.Emitter
	tracer    trace.Tracer
	deadline  time.Duration

	now  func() time.Time
	seed func() int64
}

// New creates a turn engine from cfg.
func New(cfg Config) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = 4 * time.Second
	}
	executor := resilience.NewExecutor(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffCeiling, resilience.ClassifierFunc(backend.Classify))
	assembler := assemble.New(cfg.Caps, cfg.Emitter)
	return &Engine{
		generator: cfg.Generator,
		assembler: assembler,
		router:    router.New(cfg.Generator, executor, cfg.Emitter),
		executor:  executor,
		evaluator: combat.NewEvaluator(cfg.DiscardAfter),
		prompts:   cfg.Prompts,
		tools:     defaultToolGrants(),
		persister: cfg.Persister,
		emitter:   cfg.Emitter,
		tracer:    otel.Tracer("emberloom/engine"),
		deadline:  cfg.TurnDeadline,
		now:       time.Now,
		seed:      func() int64 { return time.Now().UnixNano() },
	}
}

// Run processes one turn for session. It returns an error only when the
// turn could not be committed: empty input, an abandoned context, or a
// fatal call failure. Degraded turns commit normally with simplified text.
func (e *Engine) Run(ctx context.Context, session *Session, userInput string) (Result, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return Result{}, errors.New(errors.CodeTurnEmptyInput, "turn input is empty")
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if e.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.deadline)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "engine.turn", trace.WithAttributes(
		attribute.String("campaign.id", session.CampaignID),
		attribute.String("session.id", session.ID),
	))
	defer span.End()

	turnNumber := len(session.Turns) + 1
	in := e.assembleInput(session, userInput)

	routerCtx, err := e.assembler.BuildRouter(ctx, in)
	if err != nil {
		return Result{}, err
	}
	decision := e.router.Classify(ctx, router.Request{
		CampaignID: session.CampaignID,
		SessionID:  session.ID,
		Context:    routerCtx.Text,
	})
	span.SetAttributes(attribute.String("turn.intent", string(decision.Intent)))

	handlerCtx, err := e.assembler.Build(ctx, decision.Intent, in)
	if err != nil {
		return Result{}, err
	}
	prompt := e.prompts.For(decision.Intent) + "\n\n" + handlerCtx.Text

	outcome := e.executor.Run(ctx, func(ctx context.Context) (string, error) {
		return e.generator.Invoke(ctx, backend.Request{
			Context: prompt,
			Tools:   e.tools[decision.Intent],
		})
	}, resilience.Fallback{
		Text:       e.degradedText(decision.Intent),
		Configured: true,
	}, func(attempt int, class resilience.ErrorClass, err error) {
		e.emitAttempt(ctx, session, decision.Intent, attempt, class, err)
	})
	// An abandoned turn must not commit, even when a degraded fallback was
	// available. No session state has been mutated at this point.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, errors.Wrap(errors.CodeTurnAbandoned, "turn abandoned before commit", ctxErr)
	}
	if outcome.Status == resilience.StatusFatal {
		return Result{}, errors.Wrap(errors.CodeTurnCallsExhausted, "generation attempts exhausted", outcome.Err)
	}

	result := Result{
		Status:         outcome.Status,
		Intent:         decision.Intent,
		RouterFellBack: decision.FellBack,
	}

	response := outcome.Value
	summary := ""
	var memories []scene.MemoryWrite

	if outcome.Status == resilience.StatusOK {
		extracted := payload.Extract(outcome.Value)
		validated, validateErr := payload.Validate(decision.Intent, extracted.Block)
		switch {
		case validateErr != nil:
			// The structured patch is discarded whole; accompanying prose is
			// still the user-visible response.
			result.PayloadRejected = true
			if strings.TrimSpace(extracted.Prose) != "" {
				response = extracted.Prose
			}
			e.emitPayloadRejected(ctx, session, decision.Intent, validateErr)
		default:
			if strings.TrimSpace(extracted.Prose) != "" {
				response = extracted.Prose
			}
			summary = validated.Summary()
			memories = validated.MemoryWrites()
			session.Scene = scene.Merge(session.Scene, validated.ScenePatch())
			session.Memories = append(session.Memories, memories...)
			if validated.Encounter != nil {
				e.stageEncounter(ctx, session, validated.Encounter, turnNumber, &result)
			}
		}
	}
	if summary == "" {
		summary = budget.Trim(response, 32)
	}

	if transition, changed := e.evaluator.Evaluate(session.Plan, session.Scene, turnNumber); changed {
		e.emitTransition(ctx, session, transition)
		if result.PlanTransition == nil {
			result.PlanTransition = &transition
		}
		if session.Plan != nil && session.Plan.State == combat.StateNone {
			session.Plan = nil
		}
	}

	record := Record{
		TurnNumber: turnNumber,
		UserInput:  userInput,
		Response:   response,
		Intent:     decision.Intent,
		Status:     outcome.Status,
		Summary:    summary,
		Timestamp:  e.now().UTC(),
	}
	session.Turns = append(session.Turns, record)
	result.Record = record

	e.emitCommitted(ctx, session, record)

	if e.persister != nil {
		commit := Commit{
			CampaignID: session.CampaignID,
			SessionID:  session.ID,
			Record:     record,
			Scene:      session.Scene,
			Memories:   memories,
			Plan:       session.Plan,
		}
		if err := e.persister.CommitTurn(ctx, commit); err != nil {
			return result, errors.Wrap(errors.CodeUnknown, "persist committed turn", err)
		}
	}
	return result, nil
}

// stageEncounter replaces any existing plan with the freshly designed one.
func (e *Engine) stageEncounter(ctx context.Context, session *Session, encounter *payload.Encounter, turnNumber int, result *Result) {
	opponents := make([]combat.Opponent, 0, len(encounter.Opponents))
	for _, opponent := range encounter.Opponents {
		opponents = append(opponents, combat.Opponent{Name: opponent.Name, Role: string(opponent.Role)})
	}
	from := combat.StateNone
	if session.Plan != nil {
		from = session.Plan.State
	}
	session.Plan = combat.Prepare(encounter.Name, encounter.Summary, opponents, session.Scene, turnNumber)
	transition := combat.Transition{From: from, To: combat.StatePrepared, Reason: "encounter designed"}
	result.PlanTransition = &transition
	e.emitTransition(ctx, session, transition)
}

func (e *Engine) assembleInput(session *Session, userInput string) assemble.Input {
	turns := session.Turns
	if len(turns) > recapTurns {
		turns = turns[len(turns)-recapTurns:]
	}
	recent := make([]assemble.RecentTurn, 0, len(turns))
	for _, record := range turns {
		recent = append(recent, assemble.RecentTurn{
			TurnNumber: record.TurnNumber,
			UserInput:  record.UserInput,
			Summary:    record.Summary,
		})
	}
	return assemble.Input{
		CampaignID: session.CampaignID,
		SessionID:  session.ID,
		Scene:      session.Scene,
		Recent:     recent,
		UserInput:  userInput,
	}
}

// degradedText is the fallback response when specialist attempts exhaust.
// It always tells the player play continues in simplified form; the gameplay
// variant resolves the check locally so a mechanical action still lands.
func (e *Engine) degradedText(handler intent.Intent) string {
	switch handler {
	case intent.Gameplay:
		outcome := dice.ResolveCheck(e.seed(), 0, 0)
		verdict := "it does not go your way"
		if outcome.Success {
			verdict = "you pull it off"
		}
		return "The attempt resolves in broad strokes — " + outcome.Detail + " — " + verdict + ". Play continues with the finer detail simplified."
	case intent.NPCDialogue:
		return "They answer only in curt, guarded terms for now. Play continues with the finer detail simplified."
	default:
		return "The story presses on in broad strokes. Play continues with the finer detail simplified."
	}
}

func (e *Engine) emitAttempt(ctx context.Context, session *Session, handler intent.Intent, attempt int, class resilience.ErrorClass, err error) {
	severity := telemetry.SeverityInfo
	outcome := "success"
	attrs := map[string]any{"attempt": attempt}
	if err != nil {
		severity = telemetry.SeverityWarn
		outcome = "failure"
		attrs["error_class"] = string(class)
		attrs["error_code"] = string(backend.DomainCode(err))
	}
	_ = e.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventBackendAttempt,
		Severity:    string(severity),
		CampaignID:  session.CampaignID,
		SessionID:   session.ID,
		HandlerType: string(handler),
		Outcome:     outcome,
		Attributes:  attrs,
	})
}

func (e *Engine) emitPayloadRejected(ctx context.Context, session *Session, handler intent.Intent, err error) {
	_ = e.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventPayloadRejected,
		Severity:    string(telemetry.SeverityWarn),
		CampaignID:  session.CampaignID,
		SessionID:   session.ID,
		HandlerType: string(handler),
		Outcome:     "rejected",
		Attributes: map[string]any{
			"error_code": string(errors.GetCode(err)),
			"reason":     err.Error(),
		},
	})
}

func (e *Engine) emitTransition(ctx context.Context, session *Session, transition combat.Transition) {
	_ = e.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:  telemetry.EventCombatTransition,
		Severity:   string(telemetry.SeverityInfo),
		CampaignID: session.CampaignID,
		SessionID:  session.ID,
		Outcome:    string(transition.To),
		Attributes: map[string]any{
			"from":   string(transition.From),
			"to":     string(transition.To),
			"reason": transition.Reason,
		},
	})
}

func (e *Engine) emitCommitted(ctx context.Context, session *Session, record Record) {
	_ = e.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventTurnCommitted,
		Severity:    string(telemetry.SeverityInfo),
		CampaignID:  session.CampaignID,
		SessionID:   session.ID,
		HandlerType: string(record.Intent),
		Outcome:     string(record.Status),
		Attributes: map[string]any{
			"turn_number": record.TurnNumber,
		},
	})
}
