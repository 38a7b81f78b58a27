package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/chenguojun06-star/fz66666-sub008/config"
	"github.com/chenguojun06-star/fz66666-sub008/handlers"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fz-intelligence",
		Short: "Process-duration prediction and learning engine for the garment ERP",
		Long: `fz-intelligence learns per-tenant stage durations from scan history every
night and serves scan prechecks, finish-time predictions and in/out advice.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the nightly stats scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if migrate {
				if err := repos.AutoMigrate(a.db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			if err := a.scheduler.Start(ctx); err != nil {
				return err
			}
			if a.bridge != nil {
				if err := a.bridge.Start(ctx); err != nil {
					return err
				}
			}

			if strings.HasPrefix(strings.ToLower(a.cfg.LogMode), "prod") {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           handlers.NewRouter(a.routerDeps()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("starting server", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server: %w", err)
				}
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create or update owned tables before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the stats and prediction log tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := repos.AutoMigrate(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.log.Info("migration complete")
			return nil
		},
	}
}

func recomputeCmd() *cobra.Command {
	var tenantID int64
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild stage statistics now instead of waiting for the nightly run",
		Long: `Rebuild stage statistics now.

Examples:
  fz-intelligence recompute              # every active tenant
  fz-intelligence recompute --tenant 42  # one tenant`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if tenantID > 0 {
				updated, err := a.engine.RecomputeForTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %d: %d stage rows updated\n", tenantID, updated)
				return nil
			}

			summary := a.scheduler.RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%d tenants, %d succeeded, %d failed, %d rows updated in %s\n",
				summary.TenantCount, summary.SuccessCount, summary.FailedCount, summary.TotalUpdated, summary.Duration)
			if summary.FailedCount > 0 {
				return fmt.Errorf("%d tenants failed", summary.FailedCount)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "recompute only this tenant")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		tenantID int64
		userID   int64
		role     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for a service account of one tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID <= 0 {
				return errors.New("--tenant must be positive")
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			token, err := services.NewAuthService(cfg.JWT).GenerateToken(tenantID, userID, role)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "tenant the token is scoped to")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id recorded in the token")
	cmd.Flags().StringVar(&role, "role", "service", "role claim")
	return cmd
}
