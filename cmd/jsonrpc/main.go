// Command jsonrpc runs the HTTP/WS ingress front-end: it relays decoded
// calls into the admission pipeline and the chain read path (spec §6).
// Mirrors cita-jsonrpc/src/main.rs's two-reactor-pool structure.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/chainforge/node/admission"
	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/internal/profile"
	"github.com/chainforge/node/internal/supervisor"
	"github.com/chainforge/node/jsonrpc"
)

func main() {
	app := &cli.App{
		Name:  "jsonrpc",
		Usage: "HTTP/WS jsonrpc front-end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./jsonrpc.toml", Usage: "config file path"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("jsonrpc: fatal", "err", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := jsonrpc.LoadConfig(c.String("config"))
	if err != nil {
		log.Crit("jsonrpc: failed to read config", "err", err)
	}
	if !cfg.Enabled() {
		log.Error("jsonrpc: neither http nor ws is enabled, exiting")
		os.Exit(-1)
	}
	applyThreadDefaults(&cfg)

	b := bus.NewInProcess()
	batcher := admission.New(admission.Config{
		CountPerBatch:  cfg.NewTxFlowConfig.CountPerBatch,
		BufferDuration: cfg.NewTxFlowConfig.BufferDuration.Duration,
	}, b)
	relay := jsonrpc.NewRelay(batcher, b, cfg.BacklogCapacity)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	profile.Run(profile.Config{
		Enable:           cfg.ProfileConfig.Enable,
		FlagProfStart:    cfg.ProfileConfig.FlagProfStart.Duration,
		FlagProfDuration: cfg.ProfileConfig.FlagProfDuration.Duration,
	}, done)

	group, gctx := supervisor.New(ctx)
	group.Go("relay", relay.Run)
	group.Go("batch-ticker", func(ctx context.Context) error {
		batcher.RunTicker(ctx)
		return nil
	})
	if cfg.HTTPConfig.Enable {
		http := jsonrpc.NewHTTPServer(cfg.HTTPConfig, relay)
		group.Go("http", http.ListenAndServe)
	}
	if cfg.WSConfig.Enable {
		ws := jsonrpc.NewWSServer(cfg.WSConfig, relay)
		group.Go("ws", ws.ListenAndServe)
	}

	log.Info("jsonrpc: started", "http", cfg.HTTPConfig.Enable, "ws", cfg.WSConfig.Enable)
	<-gctx.Done()
	return group.Wait()
}

// applyThreadDefaults fills an unset thread count with runtime.NumCPU(),
// mirroring num_cpus::get() (SPEC_FULL §B).
func applyThreadDefaults(cfg *jsonrpc.Config) {
	if cfg.HTTPConfig.Threads == 0 {
		cfg.HTTPConfig.Threads = runtime.NumCPU()
	}
	if cfg.WSConfig.Threads == 0 {
		cfg.WSConfig.Threads = runtime.NumCPU()
	}
}
