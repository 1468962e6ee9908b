package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/batchgate/internal/application"
	"github.com/JonMunkholm/batchgate/internal/config"
	"github.com/JonMunkholm/batchgate/internal/core"
	"github.com/JonMunkholm/batchgate/internal/logging"
)

func newFetchCommand(rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch NAME...",
		Short: "Download, validate and store remote files",
		Long: `Download each named file from the FTP server, validate it, and store
accepted files in the valid files directory. Rejections are written to
the error log.

Exits 1 when any file is rejected or fails to download.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rf)
			if err != nil {
				return err
			}
			defer app.Close()
			return runFetch(cmd.Context(), cmd.OutOrStdout(), app.Service, args)
		},
	}
}

func newListCommand(rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [KEYWORD]",
		Short: "List remote files, optionally filtered by keyword",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rf)
			if err != nil {
				return err
			}
			defer app.Close()

			var keyword string
			if len(args) == 1 {
				keyword = args[0]
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), app.Service, keyword)
		},
	}
}

// openApp loads configuration, applies the flag overrides and connects.
func openApp(ctx context.Context, rf *remoteFlags) (*application.App, error) {
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// Keep stdout for results.
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if rf.host != "" {
		cfg.FTP.Host = rf.host
	}
	if rf.user != "" {
		cfg.FTP.User = rf.user
	}
	if rf.password != "" {
		cfg.FTP.Password = rf.password
	}

	app, err := application.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := app.ConnectDefault(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func runFetch(ctx context.Context, out io.Writer, svc *core.Service, names []string) error {
	failed := 0
	for _, name := range names {
		res, err := svc.Download(ctx, name)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(out, "%s: %s\n", name, core.FormatUserError(err))
		case res.Accepted:
			fmt.Fprintf(out, "%s: %s, stored as %s\n", name, res.Message, res.StoredAs)
		default:
			failed++
			fmt.Fprintf(out, "%s: %s (Code: %s)\n", name, res.Message, res.Code)
		}
	}
	if failed > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

func runList(ctx context.Context, out io.Writer, svc *core.Service, keyword string) error {
	names, err := svc.SearchFiles(ctx, keyword)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("%s", core.FormatUserError(err))}
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return nil
}
