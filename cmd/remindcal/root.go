package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"remindcal/internal/config"
	appLog "remindcal/internal/log"
)

// stdio is the file name that selects stdin or stdout.
const stdio = "-"

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "remindcal",
		Short:         "Translate between Remind files and iCalendar",
		Long:          "remindcal converts Remind reminder files to iCalendar and back, compares calendars semantically and serves reminder files over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (YAML); defaults are used when empty")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newRem2icsCmd(a),
		newIcs2remCmd(a),
		newCompareCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init() error {
	if a.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}
	if a.configPath == "" {
		a.cfg = config.DefaultConfig()
		return a.cfg.ApplyEnv()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	a.cfg = cfg
	appLog.Debug("config loaded", "path", a.configPath, "remind_file", cfg.RemindFile, "timezone", cfg.Timezone)
	return nil
}

// zone resolves a --zone flag, falling back to the configured zone.
func (a *app) zone(name string) (*time.Location, error) {
	if name == "" {
		return a.cfg.Location(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown zone %q: %w", name, err)
	}
	return loc, nil
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == stdio {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

// writeOutput writes data to a file, or stdout for "" and "-".
func writeOutput(cmd *cobra.Command, name, data string) error {
	if name == "" || name == stdio {
		_, err := io.WriteString(cmd.OutOrStdout(), data)
		return err
	}
	return os.WriteFile(name, []byte(data), 0o644)
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

// joinLines terminates every line with a newline.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
