package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"remindcal/internal/config"
	"remindcal/internal/ics"
	appLog "remindcal/internal/log"
	"remindcal/internal/metrics"
	"remindcal/internal/remind"
	"remindcal/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reminder files over HTTP",
		Long: `Serves the configured remind file and everything it includes as
iCalendar over HTTP, watches the files for changes and, when export_path
is set, periodically writes the combined calendar to disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			return runServe(cmd.Context(), a.cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newManager(cfg *config.Config, mt *metrics.Metrics) *remind.Manager {
	return remind.NewManager(cfg.RemindFile, remind.NewExecTool(cfg.RemindBinary),
		remind.WithZone(cfg.Location()),
		remind.WithHost(cfg.Host),
		remind.WithWindow(time.Time{}, cfg.Months),
		remind.WithWeeksBack(cfg.StartWeeksBack),
		remind.WithCalendarOptions(ics.Options{AlarmMinutes: cfg.AlarmMinutes}),
		remind.WithRenderOptions(remind.Options{
			Label:    cfg.Ics2Rem.Label,
			Priority: cfg.Ics2Rem.Priority,
			Tags:     cfg.Ics2Rem.Tags,
			Tail:     cfg.Ics2Rem.Tail,
			Sep:      cfg.Ics2Rem.Sep,
			PostDate: cfg.Ics2Rem.PostDate,
			PostTime: cfg.Ics2Rem.PostTime,
		}),
		remind.WithMetrics(mt),
	)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	appLog.Info("remindcal serve starting",
		"remind_file", cfg.RemindFile,
		"timezone", cfg.Timezone,
		"months", cfg.Months,
		"listen", cfg.Listen,
		"export_path", cfg.ExportPath,
	)

	mt := metrics.New()
	mgr := newManager(cfg, mt)

	files, err := mgr.Files(ctx)
	if err != nil {
		return err
	}

	w, err := remind.NewWatcher(mgr)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Watch(files...); err != nil {
		return fmt.Errorf("watch reminder files: %w", err)
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			appLog.Error("file watcher stopped", err)
		}
	}()

	if cfg.ExportPath != "" {
		c := cron.New(cron.WithLocation(cfg.Location()))
		if _, err := c.AddFunc(cfg.Export, func() {
			if err := exportCalendar(ctx, mgr, cfg.ExportPath); err != nil {
				appLog.Error("calendar export failed", err, "path", cfg.ExportPath)
			}
		}); err != nil {
			return fmt.Errorf("invalid export schedule %q: %w", cfg.Export, err)
		}
		if err := exportCalendar(ctx, mgr, cfg.ExportPath); err != nil {
			appLog.Error("calendar export failed", err, "path", cfg.ExportPath)
		}
		c.Start()
		defer c.Stop()
	}

	return web.StartServer(ctx, cfg, mgr, mt)
}

// exportCalendar writes the combined calendar to path atomically.
func exportCalendar(ctx context.Context, mgr *remind.Manager, path string) error {
	cal, err := mgr.All(ctx, "")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".remindcal-export-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(ics.Serialize(cal)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	appLog.Debug("calendar exported", "path", path)
	return nil
}
