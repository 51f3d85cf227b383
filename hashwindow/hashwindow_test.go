package hashwindow

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/message"
)

func emptySet() mapset.Set[message.TxHash] {
	return mapset.NewSet[message.TxHash]()
}

// TestS1WarmStartFromGenesis covers spec §8 scenario S1.
func TestS1WarmStartFromGenesis(t *testing.T) {
	w := New(100)
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicAuthBlkTxHashsReq)
	defer cancel()

	w.Update(0, emptySet(), b)

	require.True(t, w.IsInited())
	latest, ok := w.Latest()
	require.True(t, ok)
	require.EqualValues(t, 0, latest)
	low, ok := w.Low()
	require.True(t, ok)
	require.EqualValues(t, 0, low)

	select {
	case d := <-ch:
		t.Fatalf("unexpected backfill emitted: %+v", d)
	default:
	}
}

// TestS2ColdStartAboveL covers spec §8 scenario S2.
func TestS2ColdStartAboveL(t *testing.T) {
	w := New(100)
	b := bus.NewInProcess()

	w.Update(100, emptySet(), b)
	require.False(t, w.IsInited())
	latest, _ := w.Latest()
	require.EqualValues(t, 100, latest)
	low, _ := w.Low()
	require.EqualValues(t, 1, low)

	for i := message.Height(1); i < 99; i++ {
		w.Update(i, emptySet(), b)
		require.False(t, w.IsInited(), "height %d", i)
	}
	w.Update(99, emptySet(), b)
	require.True(t, w.IsInited())
}

// TestS3ForwardStepWithEviction covers spec §8 scenario S3.
func TestS3ForwardStepWithEviction(t *testing.T) {
	w := New(100)
	b := bus.NewInProcess()
	w.Update(100, emptySet(), b)
	for i := message.Height(1); i < 100; i++ {
		w.Update(i, emptySet(), b)
	}
	require.True(t, w.IsInited())

	w.Update(101, emptySet(), b)
	latest, _ := w.Latest()
	require.EqualValues(t, 101, latest)
	low, _ := w.Low()
	require.EqualValues(t, 2, low)

	w.mu.RLock()
	_, evicted := w.hashes[1]
	w.mu.RUnlock()
	require.False(t, evicted, "height 1 should have been evicted")
}

// TestS4GapDetection covers spec §8 scenario S4.
func TestS4GapDetection(t *testing.T) {
	w := New(100)
	b := bus.NewInProcess()
	ch, cancel := b.Subscribe(bus.TopicAuthBlkTxHashsReq)
	defer cancel()

	w.Update(10, emptySet(), b)
	// drain the initial backfill for [0,10) on first-call path since L=100 > 10
	drain(t, ch, 10)

	w.Update(15, emptySet(), b)

	w.mu.RLock()
	_, present := w.hashes[15]
	w.mu.RUnlock()
	require.False(t, present, "height 15 must not be inserted on a gap")

	got := drain(t, ch, 5)
	require.ElementsMatch(t, []message.Height{11, 12, 13, 14, 15}, got)
}

func drain(t *testing.T, ch <-chan bus.Delivery, n int) []message.Height {
	t.Helper()
	heights := make([]message.Height, 0, n)
	for i := 0; i < n; i++ {
		select {
		case d := <-ch:
			env, err := message.Unmarshal(d.Payload)
			require.NoError(t, err)
			require.NotNil(t, env.BlockTxHashesReq)
			heights = append(heights, env.BlockTxHashesReq.Height)
		default:
			t.Fatalf("expected %d backfill messages, got %d", n, i)
		}
	}
	return heights
}

// TestContainsConservativeBeforeInit covers spec §4.A rationale: contains
// answers true while cold so callers treat it as NotReady, not Dup.
func TestContainsConservativeBeforeInit(t *testing.T) {
	w := New(10)
	require.True(t, w.Contains(message.TxHash{0x01}))
}

// TestContainsNoFalseNegatives covers spec §8 property 3.
func TestContainsNoFalseNegatives(t *testing.T) {
	w := New(10)
	b := bus.NewInProcess()
	h0 := message.TxHash{0xAA}
	set := mapset.NewSet(h0)
	w.Update(0, set, b)
	require.True(t, w.IsInited())

	require.True(t, w.Contains(h0))
	require.False(t, w.Contains(message.TxHash{0xBB}))
}

// TestUpdateBelowWindowIgnored exercises the "below window" branch.
func TestUpdateBelowWindowIgnored(t *testing.T) {
	w := New(5)
	b := bus.NewInProcess()
	for i := message.Height(0); i < 10; i++ {
		w.Update(i, emptySet(), b)
	}
	low, _ := w.Low()
	require.EqualValues(t, 5, low)

	// Replaying an already-evicted height must not resurrect it.
	w.Update(0, mapset.NewSet(message.TxHash{0x01}), b)
	require.False(t, w.Contains(message.TxHash{0x01}))
}

func TestNewPanicsOnZeroLimit(t *testing.T) {
	require.Panics(t, func() { New(0) })
}
