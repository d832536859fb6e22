package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/arunika/client/internal/api"
	"github.com/satriahrh/arunika/client/internal/config"
	"github.com/satriahrh/arunika/client/usecase"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "arunika-client",
		Short:        "Duplex voice chat client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context())
		},
	}

	cmd.AddCommand(runCmd(), loginCmd(), logoutCmd(), sessionsCmd())
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a voice session and the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context())
		},
	}
}

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			defer a.auth.Stop()

			if email == "" {
				email = a.cfg.Auth.Email
			}
			if password == "" {
				password = a.cfg.Auth.Password
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}
			if a.cfg.Auth.Store != config.StoreKeyring {
				fmt.Fprintln(os.Stderr, "Credential store is memory; set ARUNIKA_CREDENTIAL_STORE=keyring to keep it")
			}

			if err := a.auth.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			cred, _ := a.auth.Credential()
			fmt.Printf("Logged in, credential valid until %s\n", cred.ExpiresAt().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (default ARUNIKA_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "account password (default ARUNIKA_PASSWORD)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			a.auth.Clear()
			fmt.Println("Logged out")
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List archived sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			archive, closeArchive, err := a.openArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer closeArchive()

			records, err := archive.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s  %s  %-16s %3d messages  %s\n",
					r.StartedAt.Format(time.RFC3339), r.ID, r.Status, len(r.Messages), r.Duration().Round(time.Second))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to show")
	return cmd
}

func runClient(parent context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.auth.Stop()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !a.auth.Resume() {
		if a.cfg.Auth.Email == "" || a.cfg.Auth.Password == "" {
			return errors.New("no stored credential: run login or set ARUNIKA_EMAIL and ARUNIKA_PASSWORD")
		}
		if err := a.auth.Login(ctx, a.cfg.Auth.Email, a.cfg.Auth.Password); err != nil {
			return err
		}
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()

	client := usecase.NewVoiceClient(a.sessionFactory(archive), a.auth, archive, a.logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	api.InitRoutes(e, client, a.metrics, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// the session ending stops the control API too
		defer stop()
		return client.Run(gctx)
	})

	g.Go(func() error {
		a.logger.Info("Control API started", zap.String("addr", a.cfg.Control.Addr))
		if err := e.Start(a.cfg.Control.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Client is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, usecase.ErrLoggedOut) {
			return nil
		}
		a.logger.Error("Client stopped", zap.Error(err))
		return err
	}

	a.logger.Info("Client exited")
	return nil
}
