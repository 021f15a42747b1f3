// Package commands implements the CLI commands for refresh.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.trai.ch/refresh/internal/build"
	"go.trai.ch/refresh/internal/core/ports"
)

// CLI represents the command line interface for refresh.
type CLI struct {
	app     Application
	logs    LogSettings
	rootCmd *cobra.Command
	getwd   func() (string, error)
}

// Application represents the application logic interface.
type Application interface {
	Run(ctx context.Context, cwd string, overrides ports.ConfigOverrides) error
}

// LogSettings adjusts the log output before the app runs.
type LogSettings interface {
	SetJSON(enable bool)
	SetVerbose(enable bool)
}

// New creates a new CLI instance with the given app. logs may be nil.
func New(a Application, logs LogSettings) *CLI {
	c := &CLI{
		app:   a,
		logs:  logs,
		getwd: os.Getwd,
	}

	rootCmd := &cobra.Command{
		Use:   "refresh [flags] [--] <command> [args...]",
		Short: "Restart your app and reload the browser when files change",
		Long: "refresh runs <command>, restarts it when watched files change and reloads\n" +
			"connected browsers once the new instance is ready. Without a command the\n" +
			"command from .refresh.yaml or .refresh.toml is used.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		RunE:          c.runRoot,
	}
	// Everything after the app command belongs to the app.
	rootCmd.Flags().SetInterspersed(false)

	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "Path to a .yaml, .yml or .toml config file")
	flags.IntP("port", "p", 0, "Port of the refresh server (0 picks a free port)")
	flags.String("ready-event", "", "Signal the app sends once it is ready (default \"online\")")
	flags.Int("ready-timeout", 0, "Milliseconds to wait for the ready signal, 0 disables the wait")
	flags.Int("flush-delay", 0, "Milliseconds refresh requests are coalesced for")
	flags.StringSliceP("watch", "w", nil, "Directories to watch (default: working directory)")
	flags.StringSliceP("ignore", "i", nil, "Additional ignore patterns")
	flags.String("ignore-file", "", "Ignore file (default: .refresh-ignore, then .gitignore)")
	flags.String("ssl-cert", "", "TLS certificate for the refresh server")
	flags.String("ssl-key", "", "TLS key for the refresh server")
	flags.String("tty", "", "Run the app in a pseudo terminal: auto, always or never")
	flags.Bool("keep-rules", false, "Keep special reload rules when the app restarts")
	flags.Bool("open", true, "Open the URL reported by the app in the browser")
	flags.Bool("json", false, "Write logs as JSON")
	flags.BoolP("verbose", "v", false, "Show debug logs")

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.AddCommand(c.newVersionCmd())

	c.rootCmd = rootCmd
	return c
}

func (c *CLI) runRoot(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	if c.logs != nil {
		jsonOut, _ := flags.GetBool("json")
		verbose, _ := flags.GetBool("verbose")
		c.logs.SetJSON(jsonOut)
		c.logs.SetVerbose(verbose)
	}

	cwd, err := c.getwd()
	if err != nil {
		return err
	}
	return c.app.Run(cmd.Context(), cwd, Overrides(flags, args))
}

// Overrides collects the flags set explicitly on the command line.
func Overrides(flags *pflag.FlagSet, args []string) ports.ConfigOverrides {
	o := ports.ConfigOverrides{Command: args}
	o.ConfigPath, _ = flags.GetString("config")
	o.Watch, _ = flags.GetStringSlice("watch")
	o.Ignore, _ = flags.GetStringSlice("ignore")

	o.Port = changedInt(flags, "port")
	o.ReadyTimeoutMs = changedInt(flags, "ready-timeout")
	o.FlushDelayMs = changedInt(flags, "flush-delay")
	o.ReadyEvent = changedString(flags, "ready-event")
	o.IgnoreFile = changedString(flags, "ignore-file")
	o.TLSCert = changedString(flags, "ssl-cert")
	o.TLSKey = changedString(flags, "ssl-key")
	o.TTY = changedString(flags, "tty")
	o.KeepRulesOnRestart = changedBool(flags, "keep-rules")
	o.OpenBrowser = changedBool(flags, "open")
	return o
}

func changedInt(flags *pflag.FlagSet, name string) *int {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetInt(name)
	return &v
}

func changedString(flags *pflag.FlagSet, name string) *string {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetString(name)
	return &v
}

func changedBool(flags *pflag.FlagSet, name string) *bool {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetBool(name)
	return &v
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// SetWorkingDir fixes the directory handed to the app. Used for testing.
func (c *CLI) SetWorkingDir(dir string) {
	c.getwd = func() (string, error) { return dir, nil }
}
