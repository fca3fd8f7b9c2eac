package agent

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/dom"
)

// Extract pulls content matching schema out of the page one chunk at a time. Each round's
// fields are deep-merged into what earlier chunks produced; it stops when the oracle reports
// completion or every chunk has been read.
func (s *Session) Extract(ctx context.Context, instruction string, schema map[string]any) (map[string]any, error) {
	logger := s.logger.Named("extraction")
	logger.Info("starting extraction", zap.String("instruction", instruction))

	content := map[string]any{}
	progress := ""
	var seen []int
	for {
		s.browser.WaitSettled(ctx)
		snap, err := s.builder.Next(ctx, seen)
		if errors.Is(err, dom.ErrExhaustedChunks) {
			return content, nil
		}
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		logger.Debug("received output from dom",
			zap.Int("chunk", snap.Chunk),
			zap.Int("chunks_left", len(snap.Chunks)-len(seen)))

		s.startDebug(ctx, snap)
		resp, err := s.oracle.Extract(ctx, ai.ExtractRequest{
			Instruction: instruction,
			Progress:    progress,
			Content:     content,
			DOM:         snap.Text,
			Schema:      schema,
		})
		s.cleanupDebug(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		logger.Debug("received extraction response",
			zap.Any("content", resp.Content),
			zap.String("progress", resp.Progress),
			zap.Bool("completed", resp.Completed))

		seen = append(seen, snap.Chunk)
		if err := mergeContent(content, resp.Content); err != nil {
			return nil, fmt.Errorf("merge extracted content: %w", err)
		}

		if resp.Completed || len(seen) >= len(snap.Chunks) {
			return content, nil
		}
		progress = progress + resp.Progress + ", "
		logger.Debug("continuing extraction", zap.String("progress", progress))
	}
}

// mergeContent deep-merges src into dst. Later non-empty values win and lists accumulate;
// nulls and empty strings, lists or objects never replace what an earlier chunk found.
func mergeContent(dst, src map[string]any) error {
	src = pruneEmpty(src)
	if len(src) == 0 {
		return nil
	}
	return mergo.Merge(&dst, src, mergo.WithOverride, mergo.WithAppendSlice)
}

// pruneEmpty copies m without nil, "", empty lists and objects that are empty once pruned.
// Numbers and booleans are kept, zero or not.
func pruneEmpty(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t == "" {
				continue
			}
		case []any:
			if len(t) == 0 {
				continue
			}
		case map[string]any:
			t = pruneEmpty(t)
			if len(t) == 0 {
				continue
			}
			v = t
		}
		out[k] = v
	}
	return out
}
