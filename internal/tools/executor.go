package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizassist/internal/logger"
	"bizassist/internal/metrics"
	"bizassist/pkg"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/tool"
)

// Executor runs named tools at most once per request. It never retries and
// never returns an error: every outcome is reported in the ToolAction.
type Executor struct {
	tools   map[string]tool.InvokableTool
	ledger  Ledger
	timeout time.Duration
	now     func() time.Time
}

// NewExecutor registers tools by their eino tool name
func NewExecutor(ctx context.Context, ledger Ledger, timeout time.Duration, tools ...tool.InvokableTool) (*Executor, error) {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	e := &Executor{
		tools:   make(map[string]tool.InvokableTool, len(tools)),
		ledger:  ledger,
		timeout: timeout,
		now:     time.Now,
	}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read tool info: %w", err)
		}
		if _, dup := e.tools[info.Name]; dup {
			return nil, fmt.Errorf("tool %s registered twice", info.Name)
		}
		e.tools[info.Name] = t
	}
	return e, nil
}

// Execute performs one tool request on behalf of a conversation
func (e *Executor) Execute(ctx context.Context, conversationID string, req pkg.ToolRequest) pkg.ToolAction {
	start := time.Now()
	action := pkg.ToolAction{
		ToolName:   req.ToolName,
		Parameters: req.Parameters,
		Timestamp:  e.now(),
	}
	defer func() {
		metrics.ToolActions.WithLabelValues(req.ToolName, action.Outcome.Status).Inc()
		metrics.ToolDuration.WithLabelValues(req.ToolName).Observe(time.Since(start).Seconds())
	}()

	t, ok := e.tools[req.ToolName]
	if !ok {
		action.Outcome = pkg.ToolOutcome{Status: pkg.ToolFailed, Reason: fmt.Sprintf("unknown tool %q", req.ToolName)}
		return action
	}

	key, err := ActionKey(conversationID, req.ToolName, req.Parameters)
	if err != nil {
		action.Outcome = pkg.ToolOutcome{Status: pkg.ToolFailed, Reason: err.Error()}
		return action
	}

	reserved := false
	if !req.Force {
		reserved, err = e.ledger.Reserve(ctx, key)
		if err != nil {
			action.Outcome = pkg.ToolOutcome{Status: pkg.ToolFailed, Reason: "action ledger unavailable"}
			logger.Error().Err(err).Str("tool", req.ToolName).Msg("Tool ledger reserve failed")
			return action
		}
		if !reserved {
			action.Outcome = pkg.ToolOutcome{Status: pkg.ToolSkipped, Reason: "already performed in this conversation"}
			logger.Info().Str("tool", req.ToolName).Str("conversation_id", conversationID).Msg("Tool action skipped")
			return action
		}
	}

	detail, err := e.invoke(ctx, t, req.Parameters)
	if err != nil {
		if reserved {
			if rerr := e.ledger.Release(context.WithoutCancel(ctx), key); rerr != nil {
				logger.Warn().Err(rerr).Str("tool", req.ToolName).Msg("Tool ledger release failed")
			}
		}
		action.Outcome = pkg.ToolOutcome{Status: pkg.ToolFailed, Reason: failureReason(err)}
		logger.Warn().Err(err).Str("tool", req.ToolName).Str("conversation_id", conversationID).Msg("Tool action failed")
		return action
	}

	if err := e.ledger.Complete(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn().Err(err).Str("tool", req.ToolName).Msg("Tool ledger complete failed")
	}
	action.Outcome = pkg.ToolOutcome{Status: pkg.ToolSucceeded, Detail: detail}
	logger.Info().
		Str("tool", req.ToolName).
		Str("conversation_id", conversationID).
		Dur("elapsed", time.Since(start)).
		Msg("Tool action succeeded")
	return action
}

// invoke runs the tool once, bounded by the executor timeout
func (e *Executor) invoke(ctx context.Context, t tool.InvokableTool, params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	args, err := sonic.MarshalString(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := t.InvokableRun(ctx, args)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", r.err
		}
		var d Delivery
		if err := sonic.UnmarshalString(r.out, &d); err == nil && d.ID != "" {
			return fmt.Sprintf("%s:%s", d.Provider, d.ID), nil
		}
		return r.out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrNotConfigured):
		return "channel not configured"
	}
	return err.Error()
}
