package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/recall/internal/memory"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	kindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func addCmd() *cobra.Command {
	var (
		note         string
		scope        string
		severity     string
		rationale    string
		alternatives []string
		artifacts    []string
		when         string
		strength     string
	)

	cmd := &cobra.Command{
		Use:   "add <constraint|decision|heuristic> <text>",
		Short: "Add a memory to the project store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := memory.ParseKind(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.retriever.AddMemory(cmd.Context(), memory.MemoryRecord{
				Kind:             kind,
				Text:             args[1],
				Note:             note,
				Scope:            scope,
				Severity:         memory.Severity(severity),
				Rationale:        rationale,
				Alternatives:     alternatives,
				RelatedArtifacts: artifacts,
				ApplicableWhen:   when,
				Strength:         memory.Strength(strength),
			})
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", kindStyle.Render(string(kind)), idStyle.Render(id))
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	cmd.Flags().StringVar(&scope, "scope", "", "constraint scope (path or subsystem)")
	cmd.Flags().StringVar(&severity, "severity", "", "constraint severity: error|warning")
	cmd.Flags().StringVar(&rationale, "rationale", "", "decision rationale")
	cmd.Flags().StringArrayVar(&alternatives, "alternative", nil, "rejected alternative (repeatable)")
	cmd.Flags().StringArrayVar(&artifacts, "artifact", nil, "related artifact path (repeatable)")
	cmd.Flags().StringVar(&when, "when", "", "heuristic applicability condition")
	cmd.Flags().StringVar(&strength, "strength", "", "heuristic strength: strong|moderate|weak")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		kindFlag string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var kinds []memory.Kind
			if kindFlag != "" {
				kind, err := memory.ParseKind(kindFlag)
				if err != nil {
					return err
				}
				kinds = append(kinds, kind)
			}

			results, err := a.retriever.Search(cmd.Context(), args[0], limit, kinds...)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(results)
			}

			if len(results) == 0 {
				fmt.Println(warnStyle.Render("no matches"))
				return nil
			}
			for _, res := range results {
				printResult(res)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "restrict to one kind")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func printResult(res memory.RetrievalResult) {
	fmt.Printf("%s %s %s\n  %s\n",
		scoreStyle.Render(fmt.Sprintf("%5.1f%%", res.Similarity*100)),
		kindStyle.Render(fmt.Sprintf("%-10s", res.Record.Kind)),
		idStyle.Render(res.Record.ID),
		res.Record.Text,
	)
}

func listCmd() *cobra.Command {
	var (
		kindFlag string
		all      bool
		limit    int
		offset   int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			opts := memory.ListOptions{
				Limit:           limit,
				Offset:          offset,
				IncludeInactive: all,
			}
			if kindFlag != "" {
				kind, err := memory.ParseKind(kindFlag)
				if err != nil {
					return err
				}
				opts.Kind = &kind
			}

			records, err := a.store.ListMemories(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(records)
			}

			for _, rec := range records {
				marker := " "
				if !rec.Active {
					marker = errStyle.Render("x")
				}
				friction := ""
				if rec.FrictionScore != 0 {
					friction = scoreStyle.Render(fmt.Sprintf(" [friction %+.1f]", rec.FrictionScore))
				}
				fmt.Printf("%s %s %s%s\n  %s\n",
					marker,
					kindStyle.Render(fmt.Sprintf("%-10s", rec.Kind)),
					idStyle.Render(rec.ID),
					friction,
					rec.Text,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "restrict to one kind")
	cmd.Flags().BoolVar(&all, "all", false, "include soft-deleted memories")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func deleteCmd() *cobra.Command {
	var hard bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a memory (use --hard to remove permanently)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var ok bool
			if hard {
				ok, err = a.store.HardDelete(cmd.Context(), args[0])
			} else {
				ok, err = a.store.SoftDelete(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println(warnStyle.Render("nothing to delete"))
				return nil
			}
			fmt.Println("deleted", idStyle.Render(args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "remove the record, its embedding, and its friction log")
	return cmd
}

func contextCmd() *cobra.Command {
	var (
		historyPath  string
		noMemory     bool
		heuristics   bool
		noHeuristics bool
	)

	cmd := &cobra.Command{
		Use:   "context <prompt>",
		Short: "Assemble a token-budgeted message list for a prompt",
		Long: `Builds the full LLM message list for a prompt: system instructions with
the relevant project memory, conversation history truncated to the token
budget, and the prompt itself. Output is JSON on stdout, suitable for
piping into an LLM client. History, when given, is a JSON array of
{"role","content"} objects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var history []memory.Message
			if historyPath != "" {
				data, err := os.ReadFile(historyPath)
				if err != nil {
					return fmt.Errorf("read history: %w", err)
				}
				if err := json.Unmarshal(data, &history); err != nil {
					return fmt.Errorf("parse history: %w", err)
				}
			}

			opts := memory.BuildOptions{IncludeMemory: !noMemory}
			switch {
			case heuristics:
				on := true
				opts.IncludeHeuristics = &on
			case noHeuristics:
				off := false
				opts.IncludeHeuristics = &off
			}

			result, err := a.builder.Build(cmd.Context(), args[0], history, opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file with prior conversation messages")
	cmd.Flags().BoolVar(&noMemory, "no-memory", false, "skip project memory retrieval")
	cmd.Flags().BoolVar(&heuristics, "heuristics", false, "include heuristics even for direct prompts")
	cmd.Flags().BoolVar(&noHeuristics, "no-heuristics", false, "skip heuristics even for ambiguous prompts")
	cmd.MarkFlagsMutuallyExclusive("heuristics", "no-heuristics")
	return cmd
}
