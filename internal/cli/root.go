package cli

import (
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/specforge/internal/config"
	"github.com/roach88/specforge/internal/metrics"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Factory builds the orchestrator for session commands.
	Factory OrchestratorFactory

	config   *config.Config
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the specforge CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithFactory(DefaultFactory)
}

// NewRootCommandWithFactory creates the root command with a custom
// orchestrator factory.
func NewRootCommandWithFactory(factory OrchestratorFactory) *cobra.Command {
	opts := &RootOptions{Factory: factory}

	cmd := &cobra.Command{
		Use:   "specforge",
		Short: "specforge - compile intent into a validated DesignSpec",
		Long: `Turn a natural-language backend description into a validated,
approved DesignSpec through guided questions, a compiler gate and a
bounded self-repair loop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return opts.formatter(cmd).Fail(specerr.Newf(specerr.InvalidInput,
					"invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			if err := opts.load(cmd.ErrOrStderr()); err != nil {
				return opts.formatter(cmd).Fail(err, nil)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath, "config file")

	// Document commands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPatchCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))

	// Session commands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAnswerCommand(opts))
	cmd.AddCommand(NewFinalizeCommand(opts))
	cmd.AddCommand(NewApproveCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

// load reads and validates the config and installs the logger.
func (o *RootOptions) load(stderr io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.config = cfg
	o.logger = newLogger(cfg.Logging, cfg.SlogLevel(), o.Verbose, stderr)
	o.recorder = metrics.NewRecorder()
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// withOrchestrator builds an orchestrator, runs fn and releases the store.
func (o *RootOptions) withOrchestrator(cmd *cobra.Command, fn func(orch *session.Orchestrator, f *OutputFormatter) error) (err error) {
	f := o.formatter(cmd)
	orch, closer, err := o.Factory(Env{Config: o.config, Logger: o.logger, Recorder: o.recorder})
	if err != nil {
		return f.Fail(err, nil)
	}
	defer closeInto(closer, &err)
	return fn(orch, f)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
