package domain

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// PoolID derives the pool address from its (issuer, identifier) key.
func PoolID(issuer Identity, identifier string) string {
	return deriveID("pool", string(issuer), identifier)
}

// GrantID derives the grant address from its (pool, beneficiary) key.
func GrantID(poolID string, beneficiary Identity) string {
	return deriveID("grant", poolID, string(beneficiary))
}

func deriveID(kind string, parts ...string) string {
	h, _ := blake2b.New256(nil) // nil key never errors
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
