package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osvaldoandrade/collageq/internal/stubserver"
	"github.com/osvaldoandrade/collageq/pkg/config"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfgPath := getenv("COLLAGEQ_CONFIG_PATH", "")

	cfg, err := config.LoadConfigOptional(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] invalid config:", err)
		os.Exit(1)
	}
	log.Printf("Collage Config: {Port:%d MaxFiles:%d PerFile:%dB Total:%dB Artifacts:%s}\n",
		cfg.Port, cfg.MaxFiles, cfg.MaxFileSizeBytes, cfg.MaxTotalSizeBytes, cfg.ArtifactsDir)

	srv, err := stubserver.New(cfg, stubserver.DefaultOptions())
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init server:", err)
		os.Exit(1)
	}
	stubserver.SetupRoutes(srv)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "[ERROR] http server:", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	// Best-effort flush of trace exporter (if enabled).
	if srv.TracingShutdown != nil {
		_ = srv.TracingShutdown(ctx)
	}
}
