package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/recall/internal/memory"
)

func frictionCmd() *cobra.Command {
	var (
		describe  string
		eventType string
		delta     float64
		note      string
	)

	cmd := &cobra.Command{
		Use:   "friction [memory-id]",
		Short: "Record a friction event against a memory",
		Long: `Records feedback that re-weights future retrieval. Target either a
specific memory by id, or use --describe to apply the event to every
memory the description closely matches.

Event types: iteration, correction, revert, rejection, acceptance.
Negative deltas dampen a memory's ranking, positive deltas boost it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			et := memory.EventType(eventType)
			if !et.Valid() {
				return fmt.Errorf("invalid event type %q", eventType)
			}
			if (len(args) == 0) == (describe == "") {
				return fmt.Errorf("provide exactly one of a memory id or --describe")
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				eventID, err := a.store.RecordFrictionEvent(cmd.Context(), args[0], et, delta, note)
				if err != nil {
					return err
				}
				fmt.Println("recorded", idStyle.Render(eventID))
				return nil
			}

			affected, err := a.retriever.LogFrictionByDescription(cmd.Context(), describe, et, delta, note)
			if err != nil {
				return err
			}
			if len(affected) == 0 {
				fmt.Println(warnStyle.Render("no memory matched the description"))
				return nil
			}
			for _, id := range affected {
				fmt.Println("recorded against", idStyle.Render(id))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&describe, "describe", "", "free-text description of the memory to target")
	cmd.Flags().StringVar(&eventType, "type", string(memory.EventCorrection), "event type")
	cmd.Flags().Float64Var(&delta, "delta", -1, "score delta")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	return cmd
}

func decayCmd() *cobra.Command {
	var halfLife float64

	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Apply exponential friction decay to all memories",
		Long: `Multiplies every nonzero friction score by 0.5^(1/half-life-days),
fading stale feedback toward neutral. Run it from a daily cron or before
a batch of retrievals after time away from the project.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if halfLife == 0 {
				halfLife = a.cfg.Friction.HalfLifeDays
			}

			n, err := a.store.ApplyFrictionDecay(cmd.Context(), halfLife)
			if err != nil {
				return err
			}
			fmt.Printf("decayed %d memories (half-life %.1f days)\n", n, halfLife)
			return nil
		},
	}

	cmd.Flags().Float64Var(&halfLife, "half-life", 0, "half-life in days (default from config)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.store.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(headerStyle.Render("Project Memory"))
			fmt.Printf("  total:        %d\n", stats.TotalCount)
			fmt.Printf("  constraints:  %d\n", stats.PerKindCounts[memory.KindConstraint])
			fmt.Printf("  decisions:    %d\n", stats.PerKindCounts[memory.KindDecision])
			fmt.Printf("  heuristics:   %d\n", stats.PerKindCounts[memory.KindHeuristic])
			fmt.Println(headerStyle.Render("Friction"))
			fmt.Printf("  events:       %d\n", stats.TotalFrictionEvents)
			fmt.Printf("  avg score:    %+.2f\n", stats.AverageFrictionScore)
			if stats.OldestCreatedAt != nil {
				fmt.Println(headerStyle.Render("Age"))
				fmt.Printf("  oldest:       %s\n", stats.OldestCreatedAt.Local().Format(time.RFC822))
				fmt.Printf("  newest:       %s\n", stats.NewestCreatedAt.Local().Format(time.RFC822))
			}
			return nil
		},
	}
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage working sessions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start a session and print its id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()

				id, err := a.store.StartSession(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "end <session-id>",
			Short: "End a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()

				ok, err := a.store.EndSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(warnStyle.Render("session unknown or already ended"))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Show a session and the memories it surfaced",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()

				sess, err := a.store.GetSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if sess == nil {
					return fmt.Errorf("session %s not found", args[0])
				}

				fmt.Println(headerStyle.Render("Session"), idStyle.Render(sess.ID))
				fmt.Printf("  started:  %s\n", sess.StartedAt.Local().Format(time.RFC822))
				if sess.EndedAt != nil {
					fmt.Printf("  ended:    %s\n", sess.EndedAt.Local().Format(time.RFC822))
				}
				fmt.Printf("  prompts:  %d\n", sess.PromptCount)
				fmt.Printf("  hits:     %d\n", sess.MemoryHitCount)

				mems, err := a.store.GetSessionMemories(cmd.Context(), sess.ID)
				if err != nil {
					return err
				}
				for _, sm := range mems {
					fmt.Printf("  %s %s\n",
						scoreStyle.Render(fmt.Sprintf("%5.1f%%", sm.RelevanceScore*100)),
						idStyle.Render(sm.MemoryID))
				}
				return nil
			},
		},
	)
	return cmd
}

// importEntry is one memory in a bulk import file.
type importEntry struct {
	Kind             string   `yaml:"kind"`
	Text             string   `yaml:"text"`
	Note             string   `yaml:"note"`
	Scope            string   `yaml:"scope"`
	Severity         string   `yaml:"severity"`
	Rationale        string   `yaml:"rationale"`
	Alternatives     []string `yaml:"alternatives"`
	RelatedArtifacts []string `yaml:"related_artifacts"`
	ApplicableWhen   string   `yaml:"applicable_when"`
	Strength         string   `yaml:"strength"`
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Bulk-import memories from a YAML list",
		Long: `Reads a YAML list of memories and adds them in one transaction:
either every entry lands or none do. Embeddings are computed per entry
with the configured backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}

			var entries []importEntry
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("parse import file: %w", err)
			}
			if len(entries) == 0 {
				return fmt.Errorf("import file contains no entries")
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			count := 0
			err = a.store.RunInTransaction(cmd.Context(), func(tx *memory.Store) error {
				r := memory.NewRetriever(tx, a.embedder, a.cfg.Retrieval.ToRetrieverConfig())
				for i, e := range entries {
					kind, err := memory.ParseKind(e.Kind)
					if err != nil {
						return fmt.Errorf("entry %d: %w", i, err)
					}
					if _, err := r.AddMemory(cmd.Context(), memory.MemoryRecord{
						Kind:             kind,
						Text:             e.Text,
						Note:             e.Note,
						Scope:            e.Scope,
						Severity:         memory.Severity(e.Severity),
						Rationale:        e.Rationale,
						Alternatives:     e.Alternatives,
						RelatedArtifacts: e.RelatedArtifacts,
						ApplicableWhen:   e.ApplicableWhen,
						Strength:         memory.Strength(e.Strength),
					}); err != nil {
						return fmt.Errorf("entry %d: %w", i, err)
					}
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Printf("imported %d memories\n", count)
			return nil
		},
	}
}
