package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"coolcare/internal/config"
	"coolcare/internal/logging"
	"coolcare/internal/server"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const bcryptCost = 12

func newRootCommand(out io.Writer) *cobra.Command {
	var port string

	serve := func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), port)
	}

	root := &cobra.Command{
		Use:          "coolcare",
		Short:        "CoolCare AC service backend",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&port, "port", "", "Listen port (overrides PORT)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE:  serve,
		},
		newHashPasswordCommand(),
		newVersionCommand(),
	)
	return root
}

func runServe(ctx context.Context, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}

	zl, err := logging.New(cfg.Dev)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Errorw("server init failed", "error", err)
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warnw("close failed", "error", err)
		}
	}()

	return srv.Run(ctx)
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Long:  "Print a bcrypt hash for ADMIN_PASSWORD_HASH. Reads the password from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "coolcare %s\n", version)
			return nil
		},
	}
}
