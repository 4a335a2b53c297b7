// Command verdict is an operator tool for working with domain packs:
// validating them before they ship, and running one-off evaluation
// passes against a context file to see what a rule set decides.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fundscope/verdict"
	"github.com/fundscope/verdict/cel"
	"github.com/fundscope/verdict/loader"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "verdict",
		Short:         "Grant-evaluation rules engine tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(validateCmd())
	root.AddCommand(evalCmd())
	return root
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pack-dir>",
		Short: "Parse and dry-run compile every domain pack in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Validate(args[0], cel.NewEvaluator()); err != nil {
				return err
			}
			fmt.Println("all packs valid")
			return nil
		},
	}
}

func evalCmd() *cobra.Command {
	var (
		domain      string
		modeName    string
		contextPath string
		budget      time.Duration
		diagnostics bool
	)

	cmd := &cobra.Command{
		Use:   "eval <pack-dir>",
		Short: "Load packs and run one evaluation pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := verdict.ParseMode(modeName)
			if err != nil {
				return err
			}
			data, err := readContext(contextPath)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			registry := verdict.NewRegistry(cel.NewEvaluator(), verdict.CollectDiagnostics(diagnostics))
			if err := loader.NewLoader(registry, logger).LoadDir(args[0]); err != nil {
				return err
			}
			fmt.Printf("loaded %s rules in %s domains\n",
				humanize.Comma(int64(registry.RuleCount())),
				humanize.Comma(int64(len(registry.Domains()))))

			collector := verdict.NewCollector()
			engine := verdict.NewEngine(registry,
				verdict.WithCollector(collector),
				verdict.WithLogger(logger),
				verdict.StrictDomains(true))

			var opts []verdict.EvalOption
			if budget > 0 {
				opts = append(opts, verdict.WithBudget(budget))
			}
			if diagnostics {
				opts = append(opts, verdict.ReturnDiagnostics(true))
			}

			report, err := engine.Evaluate(context.Background(), domain, data, mode, opts...)
			if err != nil {
				return err
			}
			fmt.Println(report)

			if diagnostics {
				for _, res := range report.Results {
					if res.Diagnostics == nil {
						continue
					}
					rule, _ := registry.Rule(domain, res.RuleID)
					fmt.Println(res.Diagnostics.AsString(rule))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "domain to evaluate (required)")
	cmd.Flags().StringVar(&modeName, "mode", "all-match", "first-match, all-match or priority-group")
	cmd.Flags().StringVar(&contextPath, "context", "", "JSON file with the evaluation context (required)")
	cmd.Flags().DurationVar(&budget, "budget", 0, "wall-clock budget for the pass (0 = none)")
	cmd.Flags().BoolVar(&diagnostics, "diagnostics", false, "collect and print evaluation diagnostics")
	cmd.MarkFlagRequired("domain")
	cmd.MarkFlagRequired("context")
	return cmd
}

func readContext(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}
	return data, nil
}
