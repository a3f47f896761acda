package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"famcall/internal/infrastructure/signal/relay"
	"famcall/pkg/config"
	"famcall/pkg/logger"
	"famcall/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := loadConfig(*configPath)

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()
	sugar := log.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "famcall-relay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tp.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			sugar.Warnw("redis unreachable, running single-instance", "address", cfg.Redis.Address, "error", err)
			rdb.Close()
			rdb = nil
		}
	}

	if cfg.Monitoring.PrometheusEnabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			sugar.Infow("metrics listener started", "address", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				sugar.Errorw("metrics listener stopped", "error", err)
			}
		}()
	}

	server := relay.NewServer(cfg, rdb, sugar)
	if err := server.Start(ctx); err != nil {
		sugar.Fatalw("failed to start relay", "error", err)
	}

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("shutdown error", "error", err)
	}
	if rdb != nil {
		rdb.Close()
	}
}

func loadConfig(explicit string) *config.Config {
	paths := []string{explicit, "configs/config.yaml", "config.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		cfg, err := config.Load(path)
		if err == nil {
			return cfg
		}
		if path == explicit {
			fmt.Fprintf(os.Stderr, "could not load config %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	return config.DefaultConfig()
}
