// Package app builds the command-line scaffolding shared by every
// ColdSentry binary: cobra command wiring, viper configuration layering
// (flags over environment over config file), option validation, and logger
// initialization.
package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/options"
)

// envPrefix is the prefix of environment variables read by every command:
// COLDSENTRY_LOG_LEVEL=debug maps to --log.level=debug.
const envPrefix = "COLDSENTRY"

// configSearchPaths are where a command looks for its optional config file,
// named after the command itself.
var configSearchPaths = []string{"/etc/coldsentry", "$HOME/.coldsentry", "."}

// RunFunc is the command's business entry point.
type RunFunc func() error

// App assembles one runnable command.
type App struct {
	name        string
	short       string
	description string
	options     options.IOptions
	logOptions  *log.Options
	run         RunFunc

	cmd *cobra.Command
}

// Option configures an App during construction.
type Option func(*App)

// WithOptions attaches the command's flag-backed options.
func WithOptions(o options.IOptions) Option {
	return func(a *App) { a.options = o }
}

// WithLogOptions attaches logging options; the logger is initialized from
// them before the run function starts.
func WithLogOptions(o *log.Options) Option {
	return func(a *App) { a.logOptions = o }
}

// WithRunFunc sets the command's entry point.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.run = run }
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

func NewApp(name, short string, opts ...Option) *App {
	a := &App{name: name, short: short}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.short,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          a.runCommand,
	}

	if a.options != nil {
		a.options.AddFlags(cmd.PersistentFlags())
	}
	if a.logOptions != nil {
		a.logOptions.AddFlags(cmd.PersistentFlags())
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file.")

	a.cmd = cmd
}

// Command exposes the underlying cobra command, for attaching subcommands.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits nonzero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if err := a.applyConfig(cmd); err != nil {
		return err
	}

	if a.logOptions != nil {
		log.Init(a.logOptions)
		defer log.Sync()
	}

	if a.options != nil {
		if errs := a.options.Validate(); len(errs) > 0 {
			return fmt.Errorf("invalid options: %v", errs)
		}
	}

	if a.run == nil {
		return cmd.Help()
	}
	return a.run()
}

// applyConfig layers viper sources under the flags: explicit flag values
// win, then COLDSENTRY_* environment variables, then the config file.
func (a *App) applyConfig(cmd *cobra.Command) error {
	v := viper.New()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range configSearchPaths {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// Push file and environment values back into any flag the command line
	// left at its default, so the options structs see the layered result.
	var ferr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(fmt.Sprintf("%v", v.Get(f.Name))); err != nil && ferr == nil {
			ferr = fmt.Errorf("apply config value for --%s: %w", f.Name, err)
		}
	})
	return ferr
}
