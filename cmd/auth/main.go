// Command auth runs the TxVerifier/HashWindow service: it consumes batched
// new-tx requests and chain-txhashes notifications off the bus, and
// publishes VerifyTxResp results back (spec §3, §4.A, §4.B). Mirrors
// cita-auth/src/main.rs's service-loop structure.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/hashwindow"
	"github.com/chainforge/node/internal/metrics"
	"github.com/chainforge/node/internal/supervisor"
	"github.com/chainforge/node/message"
	"github.com/chainforge/node/txsig"
	"github.com/chainforge/node/verify"
)

func main() {
	app := &cli.App{
		Name:  "auth",
		Usage: "transaction admission and hash-window service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./auth.toml", Usage: "config file path"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("auth: fatal", "err", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadAuthConfig(c.String("config"))
	if err != nil {
		log.Warn("auth: failed to read config, using defaults", "err", err)
	}

	window := hashwindow.New(cfg.BlockLimit)
	verifier := verify.New(window, txsig.Secp256k1{})

	b := bus.NewInProcess()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, gctx := supervisor.New(ctx)
	group.Go("txhashes-listener", func(ctx context.Context) error {
		return runTxHashesListener(ctx, b, window)
	})
	group.Go("batch-verifier", func(ctx context.Context) error {
		return runBatchVerifier(ctx, b, verifier)
	})

	log.Info("auth: started", "block_limit", cfg.BlockLimit)
	<-gctx.Done()
	return group.Wait()
}

func runTxHashesListener(ctx context.Context, b bus.Bus, window *hashwindow.Window) error {
	deliveries, cancel := b.Subscribe(bus.TopicChainTxHashes)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-deliveries:
			env, err := message.Unmarshal(d.Payload)
			if err != nil || env.BlockTxHashes == nil {
				log.Warn("auth: dropping undecodable block-tx-hashes message", "err", err)
				continue
			}
			hashes := toHashSet(env.BlockTxHashes.TxHashes)
			window.Update(env.BlockTxHashes.Height, hashes, b)
		}
	}
}

func runBatchVerifier(ctx context.Context, b bus.Bus, verifier *verify.Verifier) error {
	deliveries, cancel := b.Subscribe(bus.TopicNewTxBatch)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-deliveries:
			env, err := message.Unmarshal(d.Payload)
			if err != nil || env.Batch == nil {
				log.Warn("auth: dropping undecodable batch message", "err", err)
				continue
			}
			for _, req := range env.Batch.NewTxRequests {
				verifyOne(b, verifier, req)
			}
		}
	}
}

func verifyOne(b bus.Bus, verifier *verify.Verifier, req message.VerifyTxReq) {
	resp := verifier.Verify(req)
	if resp.Ret == message.RetOK && !verifier.VerifyUntilBlock(req.ValidUntilBlock) {
		resp.Ret = message.RetInvalidUntilBlock
	}
	metrics.TxAdmitted.WithLabelValues(string(resp.Ret)).Inc()

	payload, err := message.Marshal(message.Envelope{VerifyTxResp: &resp})
	if err != nil {
		log.Warn("auth: failed to marshal verify response", "err", err)
		return
	}
	if err := b.Publish(bus.TopicAuthRPC, payload); err != nil {
		log.Warn("auth: failed to publish verify response", "err", err)
	}
}

func toHashSet(hashes []message.TxHash) mapset.Set[message.TxHash] {
	return mapset.NewSet(hashes...)
}
