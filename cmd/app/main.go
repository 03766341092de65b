package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predict_go/internal/app"
	"predict_go/internal/engine"
	"predict_go/internal/event"
	"predict_go/internal/infra"

	"golang.org/x/sync/errgroup"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Event pool warmup (reduces first-trade GC pressure)
	if cfg.Engine.WarmupPools {
		event.Warmup()
	}

	// 5. Sequencer (The Hotpath Loop)
	seq := engine.NewSequencer(cfg.Engine.InboxSize, bootstrap.Store, bootstrap.Service, func(res engine.Result) {
		if res.Err != nil {
			return
		}
		if res.Bet != nil {
			slog.Debug("trade applied",
				slog.Uint64("seq", res.Seq),
				slog.String("bet", res.Bet.ID),
				slog.Float64("amount", res.Bet.Amount))
		}
	})

	// Rebuild from WAL (fresh database only)
	if cfg.Engine.ReplayOnStart {
		if err := engine.Replay(ctx, seq, bootstrap.Store, 1); err != nil {
			slog.Error("❌ WAL replay failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		seq.Run(gctx)
		return nil
	})
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started")

	// Inbox depth sampler for the metrics snapshot
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap := infra.GlobalMetrics.Snapshot()
				slog.Debug("metrics",
					slog.Uint64("trades", snap.TradesProcessed),
					slog.Uint64("fills", snap.FillsTotal),
					slog.Uint64("rejected", snap.TradesRejected),
					slog.Int64("avg_latency_ns", snap.AvgLatencyNs))
			}
		}
	})

	slog.InfoContext(ctx, "✨ Predict Go engine fully operational. Press Ctrl+C to exit.")

	if err := g.Wait(); err != nil {
		slog.Error("engine stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("👋 Shut down gracefully")
}
