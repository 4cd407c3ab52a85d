package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"
    "golang.org/x/sync/errgroup"

    "wavebatch/internal/api"
    "wavebatch/internal/buildinfo"
    "wavebatch/internal/config"
    "wavebatch/internal/logging"
)

func main() {
    cfg, err := config.Load(".")
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load config")
    }
    logging.Stderr(cfg.Development(), cfg.LogLevel)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init server")
    }
    defer func() { _ = srvDeps.Close() }()

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error { return srvDeps.Runner.Run(gctx) })
    g.Go(func() error { return srvDeps.NewWebhookWorker().Run(gctx) })
    g.Go(func() error {
        log.Info().Str("addr", srv.Addr).Str("version", buildinfo.Version).Msg("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    g.Go(func() error {
        <-gctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        return srv.Shutdown(shutdownCtx)
    })
    if err := g.Wait(); err != nil {
        log.Fatal().Err(err).Msg("server error")
    }
    log.Info().Msg("shut down")
}
