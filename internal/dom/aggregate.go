package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// BuildAll snapshots every chunk of the page's main scrolling surface and merges them into one
// index space. The surface is scrolled back to the top afterwards, also when a chunk fails.
func (b *Builder) BuildAll(ctx context.Context) (snap *Snapshot, err error) {
	regions, err := b.ScrollableRegions(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, errors.New("page reported no scrollable region")
	}
	region := regions[0]

	defer func() {
		if scrollErr := b.page.ScrollTo(context.WithoutCancel(ctx), region, 0); scrollErr != nil {
			if err == nil {
				err = fmt.Errorf("restore scroll position: %w", scrollErr)
			} else {
				b.logger.Warn("restore scroll position", zap.Error(scrollErr))
			}
		}
	}()

	chunks := Chunks(region)
	all := &Snapshot{
		Selectors: make(map[int][]string),
		Chunks:    chunks,
	}
	var sb strings.Builder
	index := 0
	for _, chunk := range chunks {
		part, err := b.Build(ctx, chunk, true, index, region)
		if err != nil {
			return nil, err
		}
		sb.WriteString(part.Text)
		for k, v := range part.Selectors {
			all.Selectors[k] = v
		}
		all.Entries = append(all.Entries, part.Entries...)
		all.Document = part.Document
		index += len(part.Selectors)
	}
	all.Text = sb.String()

	b.logger.Debug("full page processed",
		zap.Bool("root", region.Root),
		zap.Int("chunks", len(chunks)),
		zap.Int("candidates", index))
	return all, nil
}
