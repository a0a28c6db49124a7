package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denniscarrazeiro/php-curl-module/internal/config"
	"github.com/denniscarrazeiro/php-curl-module/internal/log"
	"github.com/denniscarrazeiro/php-curl-module/internal/output"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// ExitError carries a process exit code. A nil Err means the failure was
// already reported on the command's output.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// errFailed marks a command whose failure has been printed already.
var errFailed = &ExitError{Code: 1}

// app holds the state shared by every subcommand of one root command.
type app struct {
	v        *viper.Viper
	defaults config.Defaults
	logger   *slog.Logger
	format   output.OutputFormat
	verbose  bool
}

// formatter picks the output formatter for w, disabling color when w is not
// a terminal.
func (a *app) formatter(w io.Writer) output.FormatProvider {
	noColor := !output.UseColor(a.defaults.NoColor, w)
	return output.GetFormatter(a.format, a.verbose, noColor)
}

// NewRootCmd builds the gocurl command tree with its own configuration.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: log.Discard(), format: output.FormatText}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:     "gocurl",
		Short:   "A scriptable HTTP client with PHP cURL semantics",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Long: `gocurl sends HTTP requests the way PHP's cURL extension does: a body
turns the request into a POST, TLS host and peer verification are
independent switches and failures are reported as "Curl error: ..."
messages. Requests can be sent one at a time, repeated with latency
statistics, or run in sequence from a YAML or JSON request file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.gocurl.yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("format", "text", "Output format (text, json, yaml, junit)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("no_color", flags.Lookup("no-color"))
	_ = a.v.BindPFlag("format", flags.Lookup("format"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log_format", flags.Lookup("log-format"))

	root.AddCommand(newRequestCmd(a))
	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		root.AddCommand(newMethodCmd(a, method))
	}
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.ReadConfigFile(a.v, a.v.GetString("config")); err != nil {
		return err
	}
	defaults, err := config.DefaultsFrom(a.v)
	if err != nil {
		return err
	}
	a.defaults = defaults

	format, err := output.ParseFormat(a.defaults.Format)
	if err != nil {
		return err
	}
	a.format = format
	a.verbose, _ = cmd.Flags().GetBool("verbose")

	logCfg := log.FromEnv()
	if a.defaults.LogLevel != "" {
		logCfg.Level = a.defaults.LogLevel
	}
	if a.defaults.LogFormat != "" {
		logCfg.Format = log.Format(a.defaults.LogFormat)
	}
	logCfg.Output = cmd.ErrOrStderr()
	a.logger = log.New(logCfg)
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gocurl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gocurl %s (%s)\n", version, commit)
		},
	}
}
