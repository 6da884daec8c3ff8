package app

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abritton2002/emg-collector/internal/export"
	"github.com/abritton2002/emg-collector/internal/session"
)

type rootFlags struct {
	configPath string
	envPath    string
	logLevel   string
}

type exportFlags struct {
	yt      bool
	name    string
	traqID  string
	athlete string
	kind    string
	askName bool
	preview bool
	labels  map[string]string
}

// NewRootCommand builds the collector command tree. The log level is applied
// to logLevel once the configuration is loaded.
func NewRootCommand(logLevel *slog.LevelVar, logger *slog.Logger, out io.Writer) *cobra.Command {
	var flags rootFlags
	var config *Config

	root := &cobra.Command{
		Use:           "collector",
		Short:         "Pair Trigno sensors, collect EMG and export it as CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadEnv(flags.envPath); err != nil {
				return fmt.Errorf("failed to load environment file: %w", err)
			}

			var err error
			if config, err = LoadConfig(flags.configPath); err != nil {
				return fmt.Errorf("failed to load configuration file: %w", err)
			}

			level := config.Settings.LogLevel
			if flags.logLevel != "" {
				level = flags.logLevel
			}
			if err = logLevel.UnmarshalText([]byte(level)); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}

			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the configuration file")
	root.PersistentFlags().StringVar(&flags.envPath, "env", ".env", "Path to an optional environment file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level, overrides the configuration")

	// every command works on a fresh application built from the loaded config
	withApp := func(run func(cmd *cobra.Command, a *App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			a, err := New(config, logger, out)
			if err != nil {
				return err
			}
			defer func() {
				if cErr := a.Close(); cErr != nil && err == nil {
					err = fmt.Errorf("closing storage: %w", cErr)
				}
			}()

			return run(cmd, a)
		}
	}

	root.AddCommand(
		newScanCommand(withApp),
		newPairCommand(withApp),
		newCollectCommand(withApp),
		newExportCommand(withApp),
		newSessionsCommand(withApp),
	)

	return root
}

type appRunner func(run func(cmd *cobra.Command, a *App) error) func(*cobra.Command, []string) error

func newScanCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List the sensors paired to the base",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *App) error {
			_, err := a.Scan(cmd.Context())
			return err
		}),
	}
}

func newPairCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Pair sensors interactively",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *App) error {
			_, err := a.Pair(cmd.Context())
			return err
		}),
	}
}

func newCollectCommand(withApp appRunner) *cobra.Command {
	var (
		ef       exportFlags
		duration time.Duration
		withTime bool
		pair     bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Stream from the paired sensors into a new session and export it",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *App) error {
			labels, err := parseLabels(ef.labels)
			if err != nil {
				return err
			}
			exportOpts, err := ef.options(cmd, time.Now())
			if err != nil {
				return err
			}

			layout := session.LayoutEMG
			switch {
			case ef.yt:
				layout = session.LayoutYT
			case withTime:
				layout = session.LayoutTimeEMG
			}

			_, err = a.Collect(cmd.Context(), CollectOptions{
				Duration:      duration,
				Layout:        layout,
				Labels:        labels,
				Pair:          pair,
				ExportOptions: exportOpts,
			})
			return err
		}),
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop collecting after this long, streams until interrupted when 0")
	cmd.Flags().BoolVar(&withTime, "time", false, "Buffer the time series reported by the base")
	cmd.Flags().BoolVar(&pair, "pair", false, "Pair sensors interactively before collecting")
	ef.register(cmd)

	return cmd
}

func newExportCommand(withApp appRunner) *cobra.Command {
	var (
		ef        exportFlags
		sessionID int64
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored session again",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *App) error {
			labels, err := parseLabels(ef.labels)
			if err != nil {
				return err
			}
			exportOpts, err := ef.options(cmd, time.Now())
			if err != nil {
				return err
			}

			_, err = a.Export(cmd.Context(), sessionID, labels, exportOpts)
			return err
		}),
	}

	cmd.Flags().Int64VarP(&sessionID, "session", "s", 0, "Identifier of the stored session")
	_ = cmd.MarkFlagRequired("session")
	ef.register(cmd)

	return cmd
}

func newSessionsCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions and their exports",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *App) error {
			return a.Sessions(cmd.Context())
		}),
	}
}

func (f *exportFlags) register(cmd *cobra.Command) {
	types := make([]string, len(export.SessionTypes))
	for i, t := range export.SessionTypes {
		types[i] = string(t)
	}

	cmd.Flags().BoolVar(&f.yt, "yt", false, "Export every channel in the multi-channel layout")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Name of the export file")
	cmd.Flags().StringVar(&f.traqID, "traq", "", "TraqID used to name the export file")
	cmd.Flags().StringVar(&f.athlete, "athlete", "", "Athlete name used to name the export file")
	cmd.Flags().StringVar(&f.kind, "type", string(export.SessionOther), "Session type used to name the export file: "+strings.Join(types, ", "))
	cmd.Flags().BoolVar(&f.askName, "ask-name", false, "Prompt for the fields of the export file name")
	cmd.Flags().BoolVar(&f.preview, "preview", false, "Render a PNG preview next to the export")
	cmd.Flags().StringToStringVar(&f.labels, "label", nil, "Muscle label of a sensor, e.g. --label 3=Biceps")
}

func (f *exportFlags) options(cmd *cobra.Command, now time.Time) (ExportOptions, error) {
	opts := ExportOptions{YT: f.yt, Filename: f.name, Preview: f.preview}

	switch {
	case f.name != "":
	case f.askName:
		info, err := PromptFileInfo(cmd.Context(), now)
		if err != nil {
			return opts, err
		}
		opts.FileInfo = &info
	case f.traqID != "" || f.athlete != "":
		info := export.FileInfo{
			Date:        now,
			TraqID:      f.traqID,
			Athlete:     f.athlete,
			SessionType: export.SessionType(f.kind),
		}
		if err := info.Validate(); err != nil {
			return opts, fmt.Errorf("invalid file name fields: %w", err)
		}
		opts.FileInfo = &info
	}

	return opts, nil
}

// parseLabels converts pair number keyed label flags
func parseLabels(flags map[string]string) (map[int]string, error) {
	labels := make(map[int]string, len(flags))
	for key, label := range flags {
		pairNumber, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || pairNumber < 0 {
			return nil, fmt.Errorf("invalid pair number '%s' in label", key)
		}
		labels[pairNumber] = label
	}
	return labels, nil
}
