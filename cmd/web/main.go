// cmd/web/main.go
//
// Beacon – command-line entry point.
//
// Commands
// --------
//
//	beacon serve     migrate, seed preset data, and serve the API (default).
//	beacon migrate   apply schema statements and exit.
//	beacon preset    apply schema, insert missing preset records, and exit.
//
// Start-up order
// --------------
//
//  1. Console logger, so config errors are visible.
//
//  2. Load config (conf/.env → conf/global.yaml → BEACON_ env → vault:).
//
//  3. Daily rotating file logger under <root>/logs (tees to the console
//     when running in a TTY).
//
//  4. Open MySQL, run every component's migrations.
//
//  5. serve only: seed preset data, start the mail workers, build the chi
//     tree, and block until SIGINT or SIGTERM.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/logger"

	_ "github.com/yanizio/beacon/components/forms"
	_ "github.com/yanizio/beacon/components/health"
	_ "github.com/yanizio/beacon/components/login"
	_ "github.com/yanizio/beacon/components/settings"
	_ "github.com/yanizio/beacon/components/users"
)

func main() {
	logger.Bootstrap()

	root := &cobra.Command{
		Use:           "beacon",
		Short:         "Beacon API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Migrate, seed, and serve the API",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context()) },
	}
	root.RunE = serve.RunE
	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply schema statements and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := openApp(cmd.Context())
				if err != nil {
					return err
				}
				return a.Close()
			},
		},
		&cobra.Command{
			Use:   "preset",
			Short: "Insert missing preset forms, settings, and emails",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()
				rep, err := a.seed(cmd.Context())
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(rep)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.S().Errorw("beacon exited", "err", err)
		_ = zap.L().Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
