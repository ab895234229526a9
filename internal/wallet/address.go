// Package wallet validates claim wallet addresses and talks to the reward contract.
package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/and161185/earn-hire/internal/errs"
)

// Chain identifies the address family.
type Chain string

const (
	ChainEVM    Chain = "evm"
	ChainSolana Chain = "solana"
)

// Address is a validated wallet address in canonical form.
type Address struct {
	Chain Chain
	Value string
}

func (a Address) String() string { return a.Value }

// Normalize validates raw and returns its canonical form. EVM addresses are
// returned EIP-55 checksummed; mixed-case input must already carry a valid checksum.
// Solana addresses must decode to a 32-byte public key.
func Normalize(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return normalizeEVM(s[2:])
	}
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		return Address{}, fmt.Errorf("%w: wallet address %q", errs.ErrInvalidArgument, raw)
	}
	return Address{Chain: ChainSolana, Value: s}, nil
}

func normalizeEVM(body string) (Address, error) {
	if len(body) != 40 {
		return Address{}, fmt.Errorf("%w: evm address must be 20 bytes", errs.ErrInvalidArgument)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return Address{}, fmt.Errorf("%w: evm address is not hex", errs.ErrInvalidArgument)
	}
	sum := "0x" + checksum(strings.ToLower(body))
	lower, upper := strings.ToLower(body), strings.ToUpper(body)
	if body != lower && body != upper && "0x"+body != sum {
		return Address{}, fmt.Errorf("%w: bad evm checksum", errs.ErrInvalidArgument)
	}
	return Address{Chain: ChainEVM, Value: sum}, nil
}

// checksum applies EIP-55 casing to a lower-case hex body.
func checksum(lowerHex string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lowerHex))
	digest := h.Sum(nil)

	out := []byte(lowerHex)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 32
		}
	}
	return string(out)
}
