package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/endpoints/triggers"
	"git.sr.ht/~aondrejcak/payrecon/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var errRunFailed = errors.New("reconciliation run failed")

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin trigger endpoints, health and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	art := a.art

	if art.DeploymentEnvironment == "production" {
		log.Info().Msg(" === RUNNING IN PRODUCTION MODE ===")
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies([]string{}); err != nil {
		return err
	}

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "a panic occurred, request aborted",
		})
	}))
	if art.DeploymentEnvironment == "production" {
		r.Use(gin.Logger())
		r.Use(cors.New(cors.Config{
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Content-Type", "X-Api-Key"},
			ExposeHeaders:   []string{"Content-Length", "Content-Type"},
			MaxAge:          12 * time.Hour,
			AllowAllOrigins: true,
		}))
	}

	r.Use(otelgin.Middleware(art.ServiceName))
	r.Use(middleware.TracerMiddleware(art.Diagnostic))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, &gin.Error{
			Err: errors.New("route not found"),
		})
	})

	admin := r.Group("/")
	admin.Use(middleware.AdminKeyMiddleware(art.AdminKeyHash))
	triggers.RegisterController(admin, a.service, art.Diagnostic)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: art.Host, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", art.Host).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Move recent pending payments forward to their gateway status",
		RunE: oneShot(func(ctx context.Context, a *app) (any, bool) {
			s := a.service.RunSync(ctx)
			return s, s.Success
		}),
	}
}

func recoverCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Probe every order code from the last hours and repair the ledger",
		RunE: oneShot(func(ctx context.Context, a *app) (any, bool) {
			s := a.service.RunRecovery(ctx, hours)
			return s, s.Success
		}),
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "lookback in hours (0: RECON_RECOVERY_HOURS)")
	return cmd
}

func periodicCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "periodic",
		Short: "Run recovery and alert when anything was repaired",
		RunE: oneShot(func(ctx context.Context, a *app) (any, bool) {
			s := a.service.RunPeriodic(ctx, hours)
			return s, s.Success
		}),
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "lookback in hours (0: RECON_RECOVERY_HOURS)")
	return cmd
}

// oneShot wires the service, runs job once and prints its summary as JSON.
func oneShot(job func(ctx context.Context, a *app) (any, bool)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := wire(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, ok := job(ctx, a)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		if !ok {
			return errRunFailed
		}
		return nil
	}
}
