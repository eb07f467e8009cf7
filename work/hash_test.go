package work

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanod-io/nanod/ledger"
)

func TestValidateMatchesKeyedHash(t *testing.T) {
	root := ledger.BytesToHash([]byte("an example root"))
	for nonce := uint64(0); nonce < 2000; nonce++ {
		got := Validate(root, nonce, 0xffffffff00000000)
		want := hashToUint64(keyedHash(nonce, root)) >= 0xffffffff00000000
		require.Equal(t, want, got)
	}
}

func TestValidateRoundTripsWithGenerate(t *testing.T) {
	p := NewPool(WithThreads(2))
	p.Start()
	defer p.Stop()

	root := ledger.BytesToHash([]byte("round trip root"))
	const difficulty = uint64(0x0000000f00000000) // low enough to solve quickly in tests
	nonce, ok := p.GenerateSync(root, difficulty)
	require.True(t, ok)
	require.True(t, Validate(root, nonce, difficulty))
}

func TestValidateIsDeterministic(t *testing.T) {
	root := ledger.BytesToHash([]byte("deterministic"))
	for nonce := uint64(0); nonce < 100; nonce++ {
		a := Validate(root, nonce, 1<<40)
		b := Validate(root, nonce, 1<<40)
		require.Equal(t, a, b)
	}
}
