package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/v0xg/pagepilot/internal/agent"
	"github.com/v0xg/pagepilot/internal/dom"
)

func actCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "act <url> <action>...",
		Short: "Perform one or more actions in order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ctx context.Context, a *app) error {
				failed := 0
				for _, action := range args[1:] {
					fmt.Printf("→ %s... ", action)
					out, err := a.session.Act(ctx, action)
					if err != nil {
						fmt.Println("interrupted")
						return err
					}
					if !out.Success {
						failed++
						fmt.Printf("failed (%s)\n", out.Reason)
						fmt.Printf("  %s\n", out.Message)
						continue
					}
					fmt.Printf("done (%d steps)\n", out.Steps)
					logVerbose("  %s", out.Message)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d actions failed", failed, len(args)-1)
				}
				return nil
			})
		},
	}
}

func extractCmd() *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "extract <url> <instruction>",
		Short: "Extract structured content from the page as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := loadSchema(schema)
			if err != nil {
				return err
			}
			return run(cmd, args[0], func(ctx context.Context, a *app) error {
				fmt.Printf("→ Extracting... ")
				content, err := a.session.Extract(ctx, args[1], parsed)
				if err != nil {
					fmt.Println("failed")
					return err
				}
				fmt.Println("done")
				return printJSON(content)
			})
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "JSON schema of the content, as a file path or inline JSON")
	return cmd
}

func observeCmd() *cobra.Command {
	var singleChunk, noVision bool
	cmd := &cobra.Command{
		Use:   "observe <url> [instruction]",
		Short: "List elements matching an instruction with their locators",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ctx context.Context, a *app) error {
				opts := agent.ObserveOptions{SingleChunk: singleChunk, Vision: observeVision(a.cfg.Act.Vision, noVision)}
				if len(args) == 2 {
					opts.Instruction = args[1]
				}
				fmt.Printf("→ Observing... ")
				els, err := a.session.Observe(ctx, opts)
				if err != nil {
					fmt.Println("failed")
					return err
				}
				fmt.Printf("done (found %d elements)\n", len(els))
				return printJSON(els)
			})
		},
	}
	cmd.Flags().BoolVar(&singleChunk, "single-chunk", false, "Only observe the chunk at the current scroll position")
	cmd.Flags().BoolVar(&noVision, "no-vision", false, "Observe from the dom text only")
	return cmd
}

// observeVision uses a screenshot unless vision is configured off or disabled by flag.
// Models without image support fall back to text inside the session.
func observeVision(mode string, disabled bool) bool {
	return !disabled && mode != string(agent.VisionOff)
}

func snapshotCmd() *cobra.Command {
	var (
		fullPage bool
		query    string
	)
	cmd := &cobra.Command{
		Use:   "snapshot <url>",
		Short: "Print the indexed text the model would see",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ctx context.Context, a *app) error {
				if query != "" {
					nodes, err := a.session.Query(ctx, query)
					if err != nil {
						return err
					}
					for _, n := range nodes {
						fmt.Printf("%s\t%s\n", strings.Join(dom.LocationPaths(n), " | "), dom.Serialize(n))
					}
					return nil
				}
				snap, err := a.session.Snapshot(ctx, fullPage)
				if err != nil {
					return err
				}
				logVerbose("chunk %d of %v, %d candidates", snap.Chunk, snap.Chunks, snap.Len())
				fmt.Print(snap.Text)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fullPage, "full", false, "Snapshot every chunk instead of the current viewport")
	cmd.Flags().StringVar(&query, "query", "", "Print nodes matching this XPath expression instead")
	return cmd
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <url> <question>",
		Short: "Ask the model a plain question once the page has loaded",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ctx context.Context, a *app) error {
				answer, err := a.session.Ask(ctx, args[1])
				if err != nil {
					return err
				}
				fmt.Println(answer)
				return nil
			})
		},
	}
}

// loadSchema reads a JSON schema from a file, or parses s itself when it is not a file
func loadSchema(s string) (map[string]any, error) {
	if s == "" {
		return nil, errors.New("--schema is required")
	}
	data := []byte(s)
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		var err error
		if data, err = os.ReadFile(s); err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return schema, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
