package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizassist/internal/config"
	"bizassist/internal/lock"
	"bizassist/internal/logger"
	"bizassist/internal/metrics"
	"bizassist/internal/storage"
	"bizassist/pkg"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	unavailableReply = "I'm sorry, I'm temporarily unable to respond. Please try again in a moment."
	timeoutReply     = "I'm sorry, I could not complete your request in time. Please try again."
)

// Turn outcomes used as the metrics label
const (
	outcomeOK       = "ok"
	outcomeUpstream = "upstream_error"
	outcomeTimeout  = "timeout"
)

// Dependencies are the collaborators of the processor. Leads and Clock are optional.
type Dependencies struct {
	Profiles      storage.ProfileStore
	Conversations storage.ConversationStore
	Classifier    Node
	Providers     map[pkg.Intent]Node
	Tools         ToolExecutor
	Leads         LeadRecorder
	Clock         func() time.Time
}

// Processor walks one turn through received -> classified -> evidence_gathered
// -> (tools_executed) -> responded
type Processor struct {
	deps         Dependencies
	timeout      time.Duration
	contextTurns int
	locks        *lock.Keyed
	stages       map[Stage]stageFunc
}

// stageFunc runs one stage and returns the next one
type stageFunc func(ctx context.Context, st *turnState) Stage

// turnState is everything a turn accumulates on its way through the stages
type turnState struct {
	stage      Stage
	started    time.Time
	profile    *pkg.BusinessProfile
	input      NodeInput
	intent     pkg.Intent
	answeredBy pkg.Intent
	output     NodeOutput
	actions    []pkg.ToolAction
	outcome    string
	// toolCtx outlives the turn timeout; executors carry their own timeout
	toolCtx context.Context
	log     zerolog.Logger
}

// NewProcessor creates the turn orchestrator
func NewProcessor(deps Dependencies, cfg config.OrchestratorConfig) (*Processor, error) {
	if deps.Profiles == nil || deps.Conversations == nil {
		return nil, errors.New("processor requires profile and conversation stores")
	}
	if deps.Classifier == nil {
		return nil, errors.New("processor requires a classifier")
	}
	if _, ok := deps.Providers[pkg.IntentFAQ]; !ok {
		return nil, errors.New("processor requires a faq provider")
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	p := &Processor{
		deps:         deps,
		timeout:      cfg.Timeout,
		contextTurns: cfg.ContextTurns,
		locks:        lock.NewKeyed(),
	}
	if p.timeout <= 0 {
		p.timeout = 45 * time.Second
	}
	p.stages = map[Stage]stageFunc{
		StageReceived:         p.classify,
		StageClassified:       p.gatherEvidence,
		StageEvidenceGathered: p.afterEvidence,
		StageToolsExecuted:    func(context.Context, *turnState) Stage { return StageResponded },
	}

	providers := make([]string, 0, len(deps.Providers))
	for intent, node := range deps.Providers {
		providers = append(providers, fmt.Sprintf("%s=%s", intent, node.GetName()))
	}
	logger.Debug().
		Str("classifier", deps.Classifier.GetName()).
		Strs("providers", providers).
		Dur("turn_timeout", p.timeout).
		Msg("Processor created")
	return p, nil
}

// HandleTurn answers one user message. Only malformed requests, unknown
// businesses and storage failures are returned as errors; every other failure
// ends in a well-formed reply.
func (p *Processor) HandleTurn(ctx context.Context, req pkg.TurnRequest) (*pkg.TurnResponse, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.BusinessID == "" {
		return nil, fmt.Errorf("%w: business id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	profile, err := p.deps.Profiles.GetProfile(ctx, req.BusinessID)
	if err != nil {
		if errors.Is(err, storage.ErrBusinessNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBusinessNotFound, req.BusinessID)
		}
		return nil, fmt.Errorf("failed to load business profile: %w", err)
	}

	metrics.ActiveTurns.Inc()
	defer metrics.ActiveTurns.Dec()

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}
	unlock := p.locks.Lock(convID)
	defer func() { unlock() }()

	state, created, err := p.loadConversation(ctx, req, convID)
	if err != nil {
		return nil, err
	}
	if state.ID != convID {
		// the given id belonged to another business; the turn continues on a fresh id
		unlock()
		unlock = p.locks.Lock(state.ID)
	}

	st := &turnState{
		stage:   StageReceived,
		started: time.Now(),
		profile: profile,
		outcome: outcomeOK,
		toolCtx: ctx,
		log:     logger.ForTurn(req.BusinessID, state.ID),
		input: NodeInput{
			BusinessID:     req.BusinessID,
			ConversationID: state.ID,
			UserName:       firstNonEmpty(req.UserName, state.UserName),
			UserMessage:    req.Message,
			Profile:        profile,
			History:        recentTurns(state.Turns, p.contextTurns),
			LastIntent:     state.LastIntent,
			AppointmentIDs: state.AppointmentIDs,
			Now:            p.deps.Clock(),
		},
	}

	turnCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	p.run(turnCtx, st)

	reply := st.output.Reply + actionNotes(st.actions)
	now := p.deps.Clock()
	update := pkg.ConversationUpdate{
		Turns: []pkg.Turn{
			{Role: pkg.RoleUser, Text: req.Message, Timestamp: st.input.Now},
			{Role: pkg.RoleAssistant, Text: reply, Timestamp: now},
		},
		LastIntent:     st.intent,
		AppointmentIDs: st.output.AppointmentIDs,
	}
	// the turn is recorded even when the caller's context is already done
	saved, err := p.deps.Conversations.Append(context.WithoutCancel(ctx), state.ID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to record turn: %w", err)
	}

	if created && p.deps.Leads != nil {
		if err := p.deps.Leads.RecordLead(context.WithoutCancel(ctx), profile, saved, req.Message); err != nil {
			st.log.Warn().Err(err).Msg("Failed to record lead")
		}
	}

	elapsed := time.Since(st.started)
	metrics.TurnsTotal.WithLabelValues(string(st.intent), string(st.answeredBy), st.outcome).Inc()
	metrics.TurnDuration.WithLabelValues(string(st.intent)).Observe(elapsed.Seconds())
	st.log.Info().
		Str("intent", string(st.intent)).
		Str("answered_by", string(st.answeredBy)).
		Str("outcome", st.outcome).
		Int("tool_actions", len(st.actions)).
		Dur("elapsed", elapsed).
		Msg("Turn completed")

	actions := st.actions
	if actions == nil {
		actions = []pkg.ToolAction{}
	}
	return &pkg.TurnResponse{
		Reply:          reply,
		ToolActions:    actions,
		ConversationID: state.ID,
		Intent:         st.intent,
		AnsweredBy:     st.answeredBy,
		ProcessingTime: elapsed.Milliseconds(),
	}, nil
}

// run walks the stages until the turn is responded
func (p *Processor) run(ctx context.Context, st *turnState) {
	for st.stage != StageResponded {
		next := p.stages[st.stage](ctx, st)
		st.log.Debug().
			Str("from", string(st.stage)).
			Str("to", string(next)).
			Msg("Turn stage")
		st.stage = next
	}
}

func (p *Processor) classify(ctx context.Context, st *turnState) Stage {
	st.intent = pkg.IntentFAQ
	out, err := p.deps.Classifier.Execute(ctx, st.input)
	if err != nil {
		st.log.Warn().Err(err).Str("classifier", p.deps.Classifier.GetName()).Msg("Classifier failed, using faq")
	} else if intent, ok := pkg.ParseIntent(string(out.Intent)); ok {
		st.intent = intent
	}
	st.input.Intent = st.intent
	return StageClassified
}

func (p *Processor) gatherEvidence(ctx context.Context, st *turnState) Stage {
	intent := st.intent
	provider, ok := p.deps.Providers[intent]
	if !ok {
		st.log.Warn().Str("intent", string(intent)).Msg("No provider for intent, using faq")
		intent = pkg.IntentFAQ
		provider = p.deps.Providers[intent]
	}

	out, err := provider.Execute(ctx, st.input)
	if err != nil {
		p.fail(ctx, st, provider, err)
		return StageEvidenceGathered
	}
	st.output, st.answeredBy = out, intent

	if out.Escalate && intent == pkg.IntentFAQ {
		if rag, ok := p.deps.Providers[pkg.IntentDocumentQA]; ok {
			escalated, err := rag.Execute(ctx, st.input)
			if err != nil {
				// the profile answer is still an honest reply
				st.log.Warn().Err(err).Str("provider", rag.GetName()).Msg("Escalation to documents failed")
			} else {
				st.output, st.answeredBy = escalated, pkg.IntentDocumentQA
			}
		}
	}
	return StageEvidenceGathered
}

// fail replaces the reply with the fixed upstream failure reply
func (p *Processor) fail(ctx context.Context, st *turnState, node Node, err error) {
	st.output = NodeOutput{Reply: unavailableReply}
	st.outcome = outcomeUpstream
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		st.output.Reply = timeoutReply
		st.outcome = outcomeTimeout
	}
	st.log.Error().
		Err(err).
		Str("provider", node.GetName()).
		Str("outcome", st.outcome).
		Msg("Provider failed")
}

func (p *Processor) afterEvidence(ctx context.Context, st *turnState) Stage {
	if len(st.output.ToolRequests) == 0 {
		return StageResponded
	}
	p.executeTools(st)
	return StageToolsExecuted
}

// executeTools runs every request once, in order. Failures are logged as
// actions and never end the turn.
func (p *Processor) executeTools(st *turnState) {
	for _, req := range st.output.ToolRequests {
		if p.deps.Tools == nil {
			st.actions = append(st.actions, pkg.ToolAction{
				ToolName:   req.ToolName,
				Parameters: req.Parameters,
				Outcome:    pkg.ToolOutcome{Status: pkg.ToolFailed, Reason: "no tool executor configured"},
				Timestamp:  p.deps.Clock(),
			})
			continue
		}
		st.actions = append(st.actions, p.deps.Tools.Execute(st.toolCtx, st.input.ConversationID, req))
	}
}

// loadConversation returns the conversation of the request, creating it when
// needed. A conversation of another business is never continued.
func (p *Processor) loadConversation(ctx context.Context, req pkg.TurnRequest, convID string) (*pkg.ConversationState, bool, error) {
	state, err := p.deps.Conversations.Get(ctx, convID)
	switch {
	case err == nil && state.BusinessID == req.BusinessID:
		return state, false, nil
	case err == nil:
		logger.Warn().
			Str("conversation_id", convID).
			Str("business_id", req.BusinessID).
			Msg("Conversation belongs to another business, starting a new one")
		convID = uuid.NewString()
	case !errors.Is(err, storage.ErrConversationNotFound):
		return nil, false, fmt.Errorf("failed to load conversation: %w", err)
	}

	state = &pkg.ConversationState{
		ID:         convID,
		BusinessID: req.BusinessID,
		UserName:   req.UserName,
	}
	if err := p.deps.Conversations.Create(ctx, state); err != nil {
		if !errors.Is(err, storage.ErrConversationExists) {
			return nil, false, fmt.Errorf("failed to create conversation: %w", err)
		}
		// created by another process in between
		existing, err := p.deps.Conversations.Get(ctx, convID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load conversation: %w", err)
		}
		if existing.BusinessID != req.BusinessID {
			return nil, false, fmt.Errorf("%w: conversation %s belongs to another business", ErrInvalidRequest, convID)
		}
		return existing, false, nil
	}
	logger.Info().
		Str("conversation_id", convID).
		Str("business_id", req.BusinessID).
		Msg("Conversation started")
	return state, true, nil
}

// actionNotes reports failed and skipped actions after the reply
func actionNotes(actions []pkg.ToolAction) string {
	var failed, skipped []string
	for _, a := range actions {
		switch a.Outcome.Status {
		case pkg.ToolFailed:
			failed = append(failed, fmt.Sprintf("%s (%s)", toolLabel(a.ToolName), a.Outcome.Reason))
		case pkg.ToolSkipped:
			skipped = append(skipped, toolLabel(a.ToolName))
		}
	}
	var b strings.Builder
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\n\nNote: I couldn't complete these actions: %s.", strings.Join(failed, "; "))
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "\n\nNote: %s was already done earlier in this conversation, so I didn't repeat it.", strings.Join(skipped, ", "))
	}
	return b.String()
}

func toolLabel(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
