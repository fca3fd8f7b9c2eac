package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/dom"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/store"
)

// Reason classifies a failed outcome
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoActionFound  Reason = "no_action_found"
	ReasonInvalidMethod  Reason = "invalid_method"
	ReasonExecutionError Reason = "execution_error"
	ReasonOracleError    Reason = "oracle_error"
	ReasonMaxSteps       Reason = "max_steps"
)

const (
	msgNotFound = "Action not found on the current page after checking all chunks."
	stepScroll  = "## Step: Scrolled to another section\n"
)

// Outcome is the result of one Act call
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Reason  Reason `json:"reason,omitempty"`
	// Steps is the number of oracle rounds taken
	Steps int `json:"steps"`
}

// actState is carried from one round to the next
type actState struct {
	steps     string
	seen      []int
	retries   int
	vision    VisionMode
	fallbacks int
}

// Act performs a natural-language action using the session's vision mode
func (s *Session) Act(ctx context.Context, action string) (*Outcome, error) {
	return s.ActWith(ctx, action, s.opts.Vision)
}

// ActWith performs action one primitive operation at a time until the oracle reports the goal
// reached and a verifier agrees. Page and oracle failures come back as an unsuccessful
// Outcome; only cancellation of ctx is returned as an error.
func (s *Session) ActWith(ctx context.Context, action string, vision VisionMode) (*Outcome, error) {
	logger := s.logger.Named("action")
	st := actState{vision: s.vision(vision, logger)}
	fallback := st.vision == VisionFallback
	verifierVision := st.vision == VisionOn

	logger.Info("starting action", zap.String("action", action), zap.String("vision", string(st.vision)))

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if round > s.opts.MaxSteps {
			logger.Warn("max steps reached, stopping", zap.Int("steps", s.opts.MaxSteps))
			msg := fmt.Sprintf("Action not completed after %d steps", s.opts.MaxSteps)
			return s.finish(ctx, &Outcome{Message: msg, Action: action, Reason: ReasonMaxSteps, Steps: round - 1}, msg)
		}

		s.browser.WaitSettled(ctx)
		snap, err := s.builder.Next(ctx, st.seen)
		exhausted := errors.Is(err, dom.ErrExhaustedChunks)
		if err != nil && !exhausted {
			return s.failed(ctx, action, round, ReasonExecutionError, err)
		}

		var resp *ai.ActResponse
		if !exhausted {
			resp, err = s.ask(ctx, logger, action, st, snap)
			if err != nil {
				return s.failed(ctx, action, round, ReasonOracleError, err)
			}
			st.seen = append(st.seen, snap.Chunk)
			logger.Debug("received output from dom",
				zap.Int("chunk", snap.Chunk),
				zap.Int("chunks_left", len(snap.Chunks)-len(st.seen)))
		}

		if resp == nil {
			if !exhausted && len(st.seen) < len(snap.Chunks) {
				logger.Debug("no action in chunk",
					zap.Int("chunks_seen", len(st.seen)),
					zap.Int("total_chunks", len(snap.Chunks)))
				st.steps = appendStep(st.steps, stepScroll)
				continue
			}
			logger.Debug("no action with no chunks left to check")
			if fallback && st.fallbacks < s.opts.VisionFallbacks {
				st.fallbacks++
				s.scrollTop(ctx, logger)
				st.seen, st.retries, st.vision = nil, 0, VisionOn
				continue
			}
			s.browser.WaitSettled(ctx)
			return s.finish(ctx, &Outcome{Message: msgNotFound, Action: action, Reason: ReasonNoActionFound, Steps: round}, "")
		}

		entry, found := snap.Entry(resp.Element)
		if !found || !s.exec.Valid(resp.Method) {
			msg := fmt.Sprintf("Internal error: Chosen method %s is invalid", resp.Method)
			if !found {
				msg = fmt.Sprintf("Internal error: Chosen element %d is not on the page", resp.Element)
			}
			logger.Warn(msg)
			if st.retries < s.opts.MethodRetries {
				st.retries++
				st.seen = nil
				continue
			}
			return s.finish(ctx, &Outcome{Message: msg, Action: action, Reason: ReasonInvalidMethod, Steps: round}, msg)
		}

		elementText := entry.Text()
		res, err := s.exec.Execute(ctx, executor.Action{
			Method:  resp.Method,
			Element: resp.Element,
			Args:    resp.Args,
			Path:    entry.Paths[0],
		})
		if err != nil {
			return s.failed(ctx, action, round, ReasonExecutionError, err)
		}
		s.recordFrame(ctx, res.Cursor)

		newSteps := appendStep(st.steps, fmt.Sprintf(
			"## Step: %s\n  Element: %s\n  Action: %s\n  Reasoning: %s\n",
			resp.Step, elementText, resp.Method, resp.Why))
		if res.Navigated() {
			newSteps += fmt.Sprintf("  Result (Important): Page url changed to %s after this step\n\n", res.URLAfter)
		}

		completed := false
		if resp.Completed {
			completed, err = s.verify(ctx, action, newSteps, verifierVision)
			if err != nil {
				return s.failed(ctx, action, round, ReasonOracleError, err)
			}
		}
		if !completed {
			logger.Debug("continuing to next sub action")
			st.steps, st.seen, st.retries = newSteps, nil, 0
			continue
		}

		msg := "Action completed successfully: " + st.steps + resp.Step + "\nElement: " + elementText
		return s.finish(ctx, &Outcome{Success: true, Message: msg, Action: action, Steps: round}, msg)
	}
}

// ask consults the oracle over one chunk, with an annotated screenshot in vision mode
func (s *Session) ask(ctx context.Context, logger *zap.Logger, action string, st actState, snap *dom.Snapshot) (*ai.ActResponse, error) {
	req := ai.ActRequest{Goal: action, Steps: st.steps, DOM: snap.Text}
	if st.vision == VisionOn {
		img, err := s.annotated(ctx, snap, false)
		if err != nil {
			logger.Warn("error annotating screenshot, continuing without it", zap.Error(err))
		}
		req.Image = img
	}

	s.startDebug(ctx, snap)
	s.browser.WaitSettled(ctx)
	resp, err := s.oracle.Act(ctx, req)
	s.cleanupDebug(ctx)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		logger.Debug("received response",
			zap.String("method", resp.Method),
			zap.Int("element", resp.Element),
			zap.Strings("args", resp.Args),
			zap.Bool("completed", resp.Completed))
	}
	return resp, nil
}

// verify asks a second opinion on completion from a full-page screenshot or the full-page text
func (s *Session) verify(ctx context.Context, action, steps string, useVision bool) (bool, error) {
	req := ai.VerifyRequest{Goal: action, Steps: steps}
	if useVision {
		shot, err := s.browser.Screenshot(ctx, true, 15)
		if err != nil {
			return false, fmt.Errorf("verification screenshot: %w", err)
		}
		req.Image = shot
	} else {
		snap, err := s.builder.BuildAll(ctx)
		if err != nil {
			return false, fmt.Errorf("verification snapshot: %w", err)
		}
		req.DOM = snap.Text
	}
	return s.oracle.Verify(ctx, req)
}

func (s *Session) scrollTop(ctx context.Context, logger *zap.Logger) {
	region, err := s.builder.RootRegion(ctx)
	if err == nil {
		err = s.browser.ScrollTo(ctx, region, 0)
	}
	if err != nil {
		logger.Debug("error scrolling to top", zap.Error(err))
	}
}

// failed converts an error into an outcome, except for cancellation
func (s *Session) failed(ctx context.Context, action string, round int, reason Reason, err error) (*Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	msg := fmt.Sprintf("Error performing action: %v", err)
	s.logger.Named("action").Warn(msg, zap.String("reason", string(reason)))
	return s.finish(ctx, &Outcome{Message: msg, Action: action, Reason: reason, Steps: round}, msg)
}

// finish records the outcome under the action's id
func (s *Session) finish(ctx context.Context, out *Outcome, result string) (*Outcome, error) {
	rec := store.ActionRecord{
		ID:      store.Key(out.Action),
		Session: s.id,
		Action:  out.Action,
		Result:  result,
		URL:     s.currentURL(ctx),
	}
	if err := s.store.RecordAction(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("error recording action", zap.Error(err))
	}
	return out, nil
}

// appendStep starts entry on a fresh line of the step log
func appendStep(steps, entry string) string {
	if steps != "" && !strings.HasSuffix(steps, "\n") {
		steps += "\n"
	}
	return steps + entry
}
