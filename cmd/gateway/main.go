package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pairbridge/gateway/internal/auth"
	"github.com/pairbridge/gateway/internal/config"
	"github.com/pairbridge/gateway/internal/gateway"
	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/server"
	"github.com/pairbridge/gateway/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.GatewayConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	// Allow --config to override the file path before loading it
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Parse()
	if *showVersion {
		fmt.Printf("gateway version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	gateway.SetBuildInfo(version, buildSHA, buildDate)

	store := serverstate.NewMemStore()
	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		store = rs
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}
	state := serverstate.NewTracker(store)

	verifier := auth.NewSecretVerifier(cfg.Token, cfg.DefaultInstances)
	rt := gateway.NewRuntime(verifier, gateway.Options{
		ServerName:        "pairbridge-gateway",
		ServerVersion:     version,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SessionTimeout:    cfg.SessionTimeout,
		SweepInterval:     cfg.SweepInterval,
		Draining:          state.IsDraining,
	})
	rt.Start()
	defer rt.Stop()

	handler := server.New(cfg, rt, state)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		preg := prometheus.NewRegistry()
		gateway.RegisterMetrics(preg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if state.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			state.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
			go func() {
				waitCtx, stop := context.WithTimeout(ctx, cfg.DrainTimeout)
				defer stop()
				t := time.NewTicker(500 * time.Millisecond)
				defer t.Stop()
				for {
					select {
					case <-waitCtx.Done():
						if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
							logx.Log.Warn().Int("sessions", rt.Server().Sessions().Count()).Msg("drain timeout exceeded; terminating")
						}
						cancel()
						return
					case <-t.C:
						if rt.Server().Sessions().Count() == 0 {
							logx.Log.Info().Msg("drain complete; terminating")
							cancel()
							return
						}
					}
				}
			}()
		}
	}()
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()
	if metricsSrv != nil {
		go func() {
			<-ctx.Done()
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}()
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	if cfg.Token == "" {
		logx.Log.Warn().Msg("no gateway token configured; open guest access enabled")
	}
	state.SetStatus(serverstate.StatusReady)
	logx.Log.Info().Int("port", cfg.Port).Msg("gateway starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
