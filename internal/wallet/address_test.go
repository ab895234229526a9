package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/and161185/earn-hire/internal/errs"
)

func TestNormalize_EVMChecksum(t *testing.T) {
	// EIP-55 reference vectors.
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		got, err := Normalize(strings.ToLower(want))
		require.NoError(t, err)
		require.Equal(t, ChainEVM, got.Chain)
		require.Equal(t, want, got.Value)

		got, err = Normalize(want)
		require.NoError(t, err)
		require.Equal(t, want, got.String())
	}
}

func TestNormalize_EVMRejects(t *testing.T) {
	for _, in := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", // broken checksum
		"0x1234",
		"0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz",
		"",
	} {
		_, err := Normalize(in)
		require.ErrorIs(t, err, errs.ErrInvalidArgument, in)
	}
}

func TestNormalize_Solana(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr := base58.Encode(pub)

	got, err := Normalize(" " + addr + " ")
	require.NoError(t, err)
	require.Equal(t, ChainSolana, got.Chain)
	require.Equal(t, addr, got.Value)

	_, err = Normalize("0OIl")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = Normalize("abc")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}
