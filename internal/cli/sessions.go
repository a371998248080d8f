package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/spf13/cobra"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/pack"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
)

// sessionLine is the one-line text rendering of a session.
func sessionLine(s *ir.SpecSession) string {
	line := fmt.Sprintf("%s  %s  %s", s.SessionID, s.Status, s.TemplateID)
	if len(s.OpenQuestions) > 0 {
		line += "  open: " + strings.Join(s.OpenQuestions, ", ")
	}
	return line
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var templateID string

	cmd := &cobra.Command{
		Use:   "init <prompt>...",
		Short: "Start a session from a template and a prompt",
		Long: `Draft a spec from a natural-language prompt and create a session
waiting for the template's questions to be answered.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				s, err := orch.Init(cmd.Context(), templateID, prompt)
				if err != nil {
					return f.Fail(err, nil)
				}
				if f.Format == "json" {
					return f.Success(s)
				}
				return f.Success(sessionLine(s))
			})
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", pack.DefaultTemplateID, "question pack id")

	return cmd
}

// NewAnswerCommand creates the answer command.
func NewAnswerCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "answer <session-id> --set key=value...",
		Short: "Answer template questions",
		Long: `Answer one or more questions. Values are parsed as JSON when
possible (8080, true, ["a","b"], null) and taken as strings otherwise.
A null value clears an answer.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := parseSets(sets)
			if err != nil {
				return rootOpts.formatter(cmd).Fail(err, nil)
			}
			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				s, err := orch.Answer(cmd.Context(), args[0], set)
				if err != nil {
					return f.Fail(err, nil)
				}
				if f.Format == "json" {
					return f.Success(s)
				}
				return f.Success(sessionLine(s))
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "answer as key=value (repeatable)")

	return cmd
}

// parseSets turns key=value flags into an answer set.
func parseSets(sets []string) (ir.IRObject, error) {
	out := ir.IRObject{}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, specerr.Newf(specerr.InvalidInput, "--set %q: want key=value", kv)
		}
		if v, err := ir.ParseValue([]byte(raw)); err == nil {
			out[key] = v
		} else {
			out[key] = ir.IRString(raw)
		}
	}
	return out, nil
}

// NewFinalizeCommand creates the finalize command.
func NewFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		maxLoops    int
		autoApprove bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "finalize <session-id>",
		Short: "Polish, validate and repair the session's spec",
		Long: `Polish the draft into a candidate DesignSpec and run the compiler gate.
Failing candidates are repaired with model-proposed JSON patches until the
spec compiles, the repair budget is spent, or the diagnostics stop changing.

Exits 1 if the spec did not compile; the session keeps its diagnostics.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config
			opts := session.FinalizeOptions{
				MaxRepairLoops: cfg.Repair.MaxLoops,
				AutoApprove:    cfg.Repair.AutoApprove,
				Approver:       cfg.Approver,
			}
			if cmd.Flags().Changed("max-repair-loops") {
				opts.MaxRepairLoops = maxLoops
			}
			if cmd.Flags().Changed("auto-approve") {
				opts.AutoApprove = autoApprove
			}

			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				s, ferr := orch.Finalize(cmd.Context(), args[0], opts)
				if metricsFile != "" {
					if err := rootOpts.recorder.WriteTextfile(metricsFile); err != nil {
						return f.Fail(err, nil)
					}
				}
				if ferr != nil {
					var details any
					if s != nil {
						details = s.Diagnostics
						if f.Format != "json" {
							for _, d := range s.Diagnostics {
								fmt.Fprintln(f.Writer, d.String())
							}
						}
					}
					return f.Fail(ferr, details)
				}
				if f.Format == "json" {
					return f.Success(s)
				}
				_, warns := ir.CountByLevel(s.Diagnostics)
				return f.Success(fmt.Sprintf("✓ %s compiled (%d warnings)  %s", s.SessionID, warns, s.Status))
			})
		},
	}

	cmd.Flags().IntVar(&maxLoops, "max-repair-loops", session.DefaultMaxRepairLoops, "repair attempts after the first validation")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve the session when it compiles")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")

	return cmd
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:           "approve <session-id>",
		Short:         "Approve a finalized session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			by := approver
			if by == "" {
				by = rootOpts.config.Approver
			}
			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				s, err := orch.Approve(cmd.Context(), args[0], by)
				if err != nil {
					return f.Fail(err, nil)
				}
				if f.Format == "json" {
					return f.Success(s)
				}
				return f.Success(fmt.Sprintf("✓ %s approved by %s", s.SessionID, s.Approval.ApprovedBy))
			})
		},
	}

	cmd.Flags().StringVar(&approver, "by", "", "approver name (default: config approver)")

	return cmd
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write the artifacts of an approved session",
		Long: `Write spec.json, confirmation.md, uml.txt, session.json and
diagnostics.json for an approved session. Exits 1 if the session is not
approved.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				paths, err := orch.Export(cmd.Context(), args[0], outDir)
				if err != nil {
					return f.Fail(err, nil)
				}
				if f.Format == "json" {
					return f.Success(paths)
				}
				return f.Success(strings.Join(paths, "\n"))
			})
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "output directory")

	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var selector string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session",
		Long: `Print a stored session. --select narrows the output with a JSONPath
expression, e.g. --select '$.finalSpec.domains[*].key'.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var expr jp.Expr
			if selector != "" {
				var err error
				if expr, err = jp.ParseString(selector); err != nil {
					return rootOpts.formatter(cmd).Fail(specerr.Wrap(specerr.InvalidInput, err, "--select"), nil)
				}
			}
			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				s, err := orch.Show(cmd.Context(), args[0])
				if err != nil {
					return f.Fail(err, nil)
				}
				if expr == nil {
					return f.Success(s)
				}
				selected, err := selectPath(s, expr)
				if err != nil {
					return f.Fail(err, nil)
				}
				return f.Success(selected)
			})
		},
	}

	cmd.Flags().StringVar(&selector, "select", "", "JSONPath expression applied to the session")

	return cmd
}

// selectPath evaluates expr over the session's JSON form.
func selectPath(s *ir.SpecSession, expr jp.Expr) ([]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "encode session")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "decode session")
	}
	out := expr.Get(doc)
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored sessions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOrchestrator(cmd, func(orch *session.Orchestrator, f *OutputFormatter) error {
				list, err := orch.List(cmd.Context())
				if err != nil {
					return f.Fail(err, nil)
				}
				if f.Format == "json" {
					return f.Success(list)
				}
				tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tSTATUS\tTEMPLATE\tUPDATED")
				for _, sum := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sum.SessionID, sum.Status, sum.TemplateID, sum.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	return cmd
}
