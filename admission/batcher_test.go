package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/message"
)

func TestSubmitTxFlushesBySize(t *testing.T) {
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicNewTxBatch)
	defer cancel()

	batcher := New(Config{CountPerBatch: 2, BufferDuration: time.Hour}, b)
	for i := 0; i < 3; i++ {
		require.NoError(t, batcher.SubmitTx(message.VerifyTxReq{TxHash: message.TxHash{byte(i)}}))
	}

	select {
	case d := <-ch:
		env, err := message.Unmarshal(d.Payload)
		require.NoError(t, err)
		require.NotNil(t, env.Batch)
		require.Len(t, env.Batch.NewTxRequests, 3)
		require.Equal(t, byte(0), env.Batch.NewTxRequests[0].TxHash[0])
		require.Equal(t, byte(2), env.Batch.NewTxRequests[2].TxHash[0])
	default:
		t.Fatal("expected a flush on size threshold")
	}
	require.Equal(t, 0, batcher.Len())
}

func TestSubmitTxFlushesByTime(t *testing.T) {
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicNewTxBatch)
	defer cancel()

	batcher := New(Config{CountPerBatch: 1000, BufferDuration: time.Millisecond}, b)
	require.NoError(t, batcher.SubmitTx(message.VerifyTxReq{TxHash: message.TxHash{0x01}}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, batcher.SubmitTx(message.VerifyTxReq{TxHash: message.TxHash{0x02}}))

	select {
	case d := <-ch:
		env, err := message.Unmarshal(d.Payload)
		require.NoError(t, err)
		require.NotNil(t, env.Batch)
	default:
		t.Fatal("expected a flush on elapsed time")
	}
}

func TestForwardBypassesBuffer(t *testing.T) {
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe("executor.rpc")
	defer cancel()

	batcher := New(Config{CountPerBatch: 1000, BufferDuration: time.Hour}, b)
	require.NoError(t, batcher.Forward("executor.rpc", []byte("raw")))

	select {
	case d := <-ch:
		require.Equal(t, []byte("raw"), d.Payload)
	default:
		t.Fatal("expected an immediate forward")
	}
	require.Equal(t, 0, batcher.Len())
}

func TestRunTickerFlushesIdleBuffer(t *testing.T) {
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicNewTxBatch)
	defer cancel()

	batcher := New(Config{CountPerBatch: 1000, BufferDuration: 5 * time.Millisecond}, b)
	require.NoError(t, batcher.SubmitTx(message.VerifyTxReq{TxHash: message.TxHash{0x03}}))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go batcher.RunTicker(ctx)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected the ticker to flush the idle buffer")
	}
}

func TestFlushPreservesOrder(t *testing.T) {
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicNewTxBatch)
	defer cancel()

	batcher := New(Config{CountPerBatch: 1000, BufferDuration: time.Hour}, b)
	for i := 0; i < 10; i++ {
		require.NoError(t, batcher.SubmitTx(message.VerifyTxReq{TxHash: message.TxHash{byte(i)}}))
	}
	require.NoError(t, batcher.Flush())

	d := <-ch
	env, err := message.Unmarshal(d.Payload)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.Equal(t, byte(i), env.Batch.NewTxRequests[i].TxHash[0])
	}
}

func TestFlushNoopWhenEmpty(t *testing.T) {
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicNewTxBatch)
	defer cancel()

	batcher := New(Config{CountPerBatch: 10, BufferDuration: time.Hour}, b)
	require.NoError(t, batcher.Flush())

	select {
	case d := <-ch:
		t.Fatalf("unexpected publish: %+v", d)
	default:
	}
}
