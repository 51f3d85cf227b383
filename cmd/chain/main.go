// Command chain runs the ChainForwarder/BlockQueue/ReadDispatcher service:
// it consumes consensus blocks, sync traffic and read requests off the bus
// (spec §4.D, §4.E, §4.F). Mirrors cita-chain/src/forward.rs's dispatch
// loop.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/chainforge/node/blockqueue"
	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/chain"
	"github.com/chainforge/node/internal/memstore"
	"github.com/chainforge/node/internal/supervisor"
	"github.com/chainforge/node/message"
	"github.com/chainforge/node/readdispatcher"
)

func main() {
	app := &cli.App{
		Name:  "chain",
		Usage: "block queue, chain forwarding and read-dispatch service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./chain.toml", Usage: "config file path"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("chain: fatal", "err", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadChainConfig(c.String("config"))
	if err != nil {
		log.Warn("chain: failed to read config, using defaults", "err", err)
	}

	b := bus.NewInProcess()
	store := memstore.New(proofTypeFromString(cfg.ProofType))
	queue := blockqueue.New()
	gas := chain.NewGasLimits()

	var logFeed, chainFeed event.Feed
	filters := readdispatcher.NewFilterTable()
	dispatcher := readdispatcher.New(store, filters, &logFeed, &chainFeed, func(raw []byte) error {
		return b.Publish(bus.TopicExecutorRPC, raw)
	})

	forwarder := chain.New(store, queue, gas, b, dispatcher, cfg.ExecutedBuffer)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, gctx := supervisor.New(ctx)
	group.Go("block-processor", func(ctx context.Context) error {
		forwarder.RunBlockProcessor(ctx)
		return nil
	})
	group.Go("dispatch-loop", func(ctx context.Context) error {
		return runDispatchLoop(ctx, b, forwarder)
	})

	log.Info("chain: started", "executed_buffer", cfg.ExecutedBuffer, "proof_type", cfg.ProofType)
	<-gctx.Done()
	return group.Wait()
}

func runDispatchLoop(ctx context.Context, b bus.Bus, forwarder *chain.Forwarder) error {
	topics := []string{
		bus.TopicChainRPC,
		bus.TopicChainBlk,
	}
	merged := make(chan bus.Delivery, 256)
	for _, topic := range topics {
		deliveries, cancel := b.Subscribe(topic)
		defer cancel()
		go relayDeliveries(ctx, deliveries, merged)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-merged:
			env, err := message.Unmarshal(d.Payload)
			if err != nil {
				log.Warn("chain: dropping undecodable message", "topic", d.Topic, "err", err)
				continue
			}
			forwarder.Dispatch(ctx, env, d.Payload)
		}
	}
}

func relayDeliveries(ctx context.Context, in <-chan bus.Delivery, out chan<- bus.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-in:
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

func proofTypeFromString(s string) message.ProofType {
	if s == "tendermint" {
		return message.ProofTypeTendermint
	}
	return message.ProofTypeUnknown
}
