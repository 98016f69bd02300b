package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateEnterExit(t *testing.T) {
	g := newGate()

	require.NoError(t, g.enter())
	require.NoError(t, g.enter())
	g.exit()
	g.exit()

	require.NoError(t, g.enter())
	g.exit()
}

func TestGateSealRejectsOperations(t *testing.T) {
	g := newGate()

	require.NoError(t, g.seal())

	require.ErrorIs(t, g.enter(), ErrCollectionSealed)
	require.ErrorIs(t, g.seal(), ErrCollectionSealed)

	g.unseal()

	require.NoError(t, g.enter())
	g.exit()
}

func TestGateSealWaitsForInflight(t *testing.T) {
	g := newGate()

	require.NoError(t, g.enter())

	sealErr := make(chan error, 1)
	go func() { sealErr <- g.seal() }()

	select {
	case <-sealErr:
		t.Fatal("seal returned while an operation was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	g.exit()

	select {
	case err := <-sealErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("seal did not return after the operation drained")
	}

	g.unseal()
	require.NoError(t, g.enter())
	g.exit()
}

func TestGateCloseRejectsOperations(t *testing.T) {
	g := newGate()

	g.close()
	g.close() // idempotent

	require.ErrorIs(t, g.enter(), ErrClosed)
	require.ErrorIs(t, g.seal(), ErrClosed)
}

func TestGateCloseWaitsForInflight(t *testing.T) {
	g := newGate()

	require.NoError(t, g.enter())

	closed := make(chan struct{})
	go func() {
		g.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while an operation was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	g.exit()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return after the operation drained")
	}
}

func TestGateCloseWinsOverSeal(t *testing.T) {
	g := newGate()

	require.NoError(t, g.enter())

	sealErr := make(chan error, 1)
	go func() { sealErr <- g.seal() }()

	// Wait until the sealer is draining before close races in.
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.sealed
	}, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		g.close()
		close(closed)
	}()

	// Wait until close has marked the gate; it then blocks on the drain.
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.closed
	}, time.Second, time.Millisecond)

	g.exit()

	select {
	case err := <-sealErr:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("seal did not return")
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
}
