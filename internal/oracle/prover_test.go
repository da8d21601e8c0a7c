package oracle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProverWordsVerify(t *testing.T) {
	t.Parallel()

	p := NewProver()
	pub, err := p.PublicKey()
	require.NoError(t, err)

	words, proof, err := p.Prove("0x79d3", 7, []byte("seed"), 3)
	require.NoError(t, err)
	require.Len(t, words, 3)
	assert.NotEqual(t, words[0], words[1])
	for _, w := range words {
		assert.LessOrEqual(t, w.BitLen(), 256)
	}

	require.NoError(t, VerifyProof(pub, proof, words))
}

func TestProverRejectsTamperedWords(t *testing.T) {
	t.Parallel()

	p := NewProver()
	pub, err := p.PublicKey()
	require.NoError(t, err)

	words, proof, err := p.Prove("0x79d3", 1, []byte("seed"), 1)
	require.NoError(t, err)

	tampered := []*big.Int{new(big.Int).Add(words[0], big.NewInt(1))}
	require.ErrorIs(t, VerifyProof(pub, proof, tampered), ErrProofMismatch)
}

func TestProverRejectsForeignKey(t *testing.T) {
	t.Parallel()

	words, proof, err := NewProver().Prove("0x79d3", 1, []byte("seed"), 1)
	require.NoError(t, err)

	other, err := NewProver().PublicKey()
	require.NoError(t, err)
	require.Error(t, VerifyProof(other, proof, words))
}

func TestProverDeterministicPerRequest(t *testing.T) {
	t.Parallel()

	p := NewProver()
	a, _, err := p.Prove("0x79d3", 1, []byte("seed"), 1)
	require.NoError(t, err)
	b, _, err := p.Prove("0x79d3", 1, []byte("seed"), 1)
	require.NoError(t, err)
	c, _, err := p.Prove("0x79d3", 2, []byte("seed"), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, a[0].Cmp(b[0]))
	assert.NotEqual(t, 0, a[0].Cmp(c[0]))
}
