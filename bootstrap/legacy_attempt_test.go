package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanod-io/nanod/ledger"
)

type fakeConn struct{ endpoint string }

func (c *fakeConn) Endpoint() string { return c.endpoint }

type fakePool struct{ conn Connection }

func (p *fakePool) Acquire(ctx context.Context) (Connection, bool) { return p.conn, true }
func (p *fakePool) Release(Connection)                            {}
func (p *fakePool) Reconnect(Connection)                          {}

type fakeFrontierClient struct {
	frontiers map[ledger.Account]ledger.Hash
}

func (f *fakeFrontierClient) RequestFrontiers(ctx context.Context, conn Connection, fn func(ledger.Account, ledger.Hash) bool) bool {
	for acc, h := range f.frontiers {
		if !fn(acc, h) {
			break
		}
	}
	return true
}

type fakeBulkPull struct{ calls int }

func (f *fakeBulkPull) PullAccount(ctx context.Context, conn Connection, pull PullInfo, fn func(*ledger.Block) bool) bool {
	f.calls++
	fn(&ledger.Block{Hash: pull.Head})
	return true
}

type fakeBulkPush struct{ pushed int }

func (f *fakeBulkPush) Push(ctx context.Context, conn Connection, blk *ledger.Block) bool {
	f.pushed++
	return true
}

type fakeBlockSource struct{ streamed int }

func (f *fakeBlockSource) StreamBlocks(head, end ledger.Hash, fn func(*ledger.Block) bool) error {
	f.streamed++
	fn(&ledger.Block{Hash: end})
	return nil
}

func TestLegacyAttemptHappyPathReachesDone(t *testing.T) {
	acc := ledger.Account{1}
	frontier := ledger.Hash{2}
	pull := &fakeBulkPull{}
	push := &fakeBulkPush{}
	blocks := &fakeBlockSource{}

	a := NewLegacyAttempt(
		TestConfig(),
		nil,
		&fakePool{conn: &fakeConn{endpoint: "peer1"}},
		&fakeFrontierClient{frontiers: map[ledger.Account]ledger.Hash{acc: frontier}},
		pull,
		push,
		nil, // no confirm-req client needed: restart thresholds are never crossed
		nil,
		nil,
		blocks,
		nil,
	)

	err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, pull.calls)
	require.Equal(t, 1, blocks.streamed)
	require.Equal(t, 1, push.pushed)
}

func TestLegacyAttemptRetriesFrontierRequestUntilStopped(t *testing.T) {
	a := NewLegacyAttempt(
		TestConfig(),
		nil,
		&failingPool{},
		&fakeFrontierClient{},
		&fakeBulkPull{},
		&fakeBulkPush{},
		nil, nil, nil, nil, nil,
	)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	a.Stop()
	err := <-done
	require.ErrorIs(t, err, ErrStopped)
}

type failingPool struct{}

func (failingPool) Acquire(ctx context.Context) (Connection, bool) { return nil, false }
func (failingPool) Release(Connection)                             {}
func (failingPool) Reconnect(Connection)                           {}
