// i3blocks feeds i3bar with the output of scheduled command blocks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zopieux/i3blocks/internal/bar"
	"github.com/Zopieux/i3blocks/internal/config"
	"github.com/Zopieux/i3blocks/internal/i3bar"
	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
	"github.com/Zopieux/i3blocks/internal/sched"
)

var (
	configPath  string
	logLevel    string
	watchConfig bool
)

const version = "1.5.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "i3blocks",
		Short:   "A flexible scheduler for your i3bar blocks",
		Version: version,
		Long: `i3blocks feeds i3bar with the output of the commands defined in its
configuration file. Each command runs as its own block, refreshed on a fixed
interval, on click, or on a dedicated real-time signal.

Without --config, the configuration is looked up under $XDG_CONFIG_HOME,
$XDG_CONFIG_DIRS, $HOME and /etc, in that order.`,
		Args:         cobra.NoArgs,
		RunE:         runBar,
		SilenceUsage: true,
	}

	// Flags.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: search the standard locations)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log verbosity: debug, info, warn or error")
	rootCmd.Flags().BoolVar(&watchConfig, "watch-config", false, "Restart blocks when the configuration file changes")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logging.Logger {
	return logging.New(os.Stderr, logging.ParseLevel(logLevel))
}

func runBar(cmd *cobra.Command, args []string) error {
	log := newLogger()

	path := configPath
	if path == "" {
		path = config.Locate()
	}
	if watchConfig && path == "" {
		log.Warnf("no configuration file to watch")
	}

	writer := i3bar.NewWriter(os.Stdout)
	if err := writer.WriteHeader(i3bar.Header{Version: 1, ClickEvents: true}); err != nil {
		return err
	}

	// The protocol header goes out exactly once, so configuration reloads
	// restart everything below it but keep the writer.
	for {
		cfg, err := loadConfig(path, log)
		if err != nil {
			return err
		}

		reason, err := runOnce(cmd.Context(), cfg, path, writer, log)
		if err != nil {
			return err
		}
		switch reason {
		case sched.ExitReload:
			continue
		case sched.ExitError:
			return errors.New("scheduler failed")
		default:
			return nil
		}
	}
}

func loadConfig(path string, log *logging.Logger) (model.Config, error) {
	if path == "" {
		log.Warnf("no configuration file found, using the built-in defaults")
		return config.LoadDefault()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return model.Config{}, err
	}
	log.Infof("loaded %d block(s) from %s", len(cfg.Blocks), path)
	return cfg, nil
}

// runOnce builds the bar from one configuration snapshot and schedules it
// until the scheduler gives a reason to stop.
func runOnce(ctx context.Context, cfg model.Config, path string, writer *i3bar.Writer, log *logging.Logger) (sched.ExitReason, error) {
	b := bar.New(cfg, log)

	var reload <-chan struct{}
	var g errgroup.Group
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watchConfig && path != "" {
		w, err := config.NewWatcher(path, log)
		if err != nil {
			return sched.ExitError, fmt.Errorf("watch %s: %w", path, err)
		}
		defer w.Close()
		reload = w.Reload()
		g.Go(func() error { return w.Run(wctx) })
	}

	s, err := sched.New(sched.Config{
		Intervals:  b.Intervals(),
		ClickInput: int(os.Stdin.Fd()),
		Reload:     reload,
	}, b, func() error { return writer.WriteStatusLine(b.StatusLine()) }, log)
	if err != nil {
		return sched.ExitError, err
	}

	reason := s.Run(ctx)

	cancel()
	if err := g.Wait(); err != nil {
		log.Errorf("config watcher: %v", err)
	}
	return reason, nil
}
