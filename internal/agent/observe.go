package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/dom"
	"github.com/v0xg/pagepilot/internal/store"
)

// ObserveOptions configures Observe
type ObserveOptions struct {
	// Instruction defaults to finding every element useful for later actions
	Instruction string
	Vision      bool
	// SingleChunk observes the chunk at the current scroll position instead of the whole page
	SingleChunk bool
}

// Element is one observed element
type Element struct {
	ID          string   `json:"id"`
	Index       int      `json:"index"`
	Description string   `json:"description"`
	Locator     []string `json:"locator"`
}

// Observe asks the oracle which elements match an instruction and returns their locators.
// Each element is recorded under the hash of its locator.
func (s *Session) Observe(ctx context.Context, opts ObserveOptions) ([]Element, error) {
	logger := s.logger.Named("observation")
	instruction := opts.Instruction
	if instruction == "" {
		instruction = ai.DefaultObservation
	}
	logger.Info("starting observation", zap.String("instruction", instruction))

	vision := VisionOff
	if opts.Vision {
		vision = s.vision(VisionOn, logger)
	}
	fullPage := !opts.SingleChunk

	s.browser.WaitSettled(ctx)
	var (
		snap *dom.Snapshot
		err  error
	)
	if fullPage {
		snap, err = s.builder.BuildAll(ctx)
	} else {
		snap, err = s.builder.Next(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}

	req := ai.ObserveRequest{Instruction: instruction, DOM: snap.Text}
	if vision == VisionOn {
		img, err := s.annotated(ctx, snap, fullPage)
		if err != nil {
			logger.Warn("error annotating screenshot, using dom text", zap.Error(err))
		} else {
			req.Image = img
			req.DOM = ai.NoDOMWithImage
		}
	}

	s.startDebug(ctx, snap)
	found, err := s.oracle.Observe(ctx, req)
	s.cleanupDebug(ctx)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}

	url := s.currentURL(ctx)
	elements := make([]Element, 0, len(found))
	for _, o := range found {
		locator, ok := snap.Selectors[o.ElementID]
		if !ok {
			logger.Warn("oracle returned unknown element", zap.Int("element", o.ElementID))
			continue
		}
		el := Element{
			ID:          store.Key(strings.Join(locator, ",")),
			Index:       o.ElementID,
			Description: o.Description,
			Locator:     locator,
		}
		elements = append(elements, el)
		if err := s.store.RecordObservation(ctx, store.ObservationRecord{
			ID:          el.ID,
			Session:     s.id,
			Instruction: instruction,
			Description: el.Description,
			Locator:     el.Locator,
			URL:         url,
			CreatedAt:   time.Now(),
		}); err != nil {
			logger.Warn("error recording observation", zap.Error(err))
		}
	}
	return elements, nil
}
