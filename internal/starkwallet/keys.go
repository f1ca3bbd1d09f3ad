package starkwallet

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// curveOrder is the order of the Stark curve subgroup. Private keys must be
// nonzero scalars strictly below it.
var curveOrder, _ = new(big.Int).SetString(
	"0800000000000010ffffffffffffffffb781126dcae7b2321e66a241adc64d2f", 16)

// derivationContext is mixed into deterministic derivation so the same
// secret can be reused for unrelated purposes without key collisions.
const derivationContext = "alcancia-invisible-account"

// DerivePrivateKey returns a private key for the given entity.
//
// With a secret it is deterministic: HMAC-SHA256 over the entity identifier
// and a context string that includes the account variant, reduced into the
// valid scalar range. The same (secret, entity, variant) always yields the
// same key, across process restarts.
//
// Without a secret the key is drawn from crypto/rand and is only stable for
// the lifetime of the process.
func DerivePrivateKey(entityID, secret, variant string) (*big.Int, error) {
	if strings.TrimSpace(secret) == "" {
		return randomPrivateKey()
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(entityID + ":" + derivationContext + ":" + variant))
	digest := mac.Sum(nil)

	// Reduce mod (N-1); a zero result is substituted with 1 so the scalar is
	// always nonzero and below the curve order.
	nMinusOne := new(big.Int).Sub(curveOrder, big.NewInt(1))
	k := new(big.Int).SetBytes(digest)
	k.Mod(k, nMinusOne)
	if k.Sign() == 0 {
		k.SetInt64(1)
	}
	return k, nil
}

// randomPrivateKey draws a uniform scalar in [1, N-1].
func randomPrivateKey() (*big.Int, error) {
	nMinusOne := new(big.Int).Sub(curveOrder, big.NewInt(1))
	k, err := rand.Int(rand.Reader, nMinusOne)
	if err != nil {
		return nil, fmt.Errorf("random private key: %w", err)
	}
	return k.Add(k, big.NewInt(1)), nil
}

// KeyToHex renders a private key as a 0x-prefixed 64-digit hex string.
func KeyToHex(k *big.Int) string {
	return fmt.Sprintf("0x%064x", k)
}

// KeyFromHex parses a 0x-prefixed (or bare) hex private key.
func KeyFromHex(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	k, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid private key hex: %q", s)
	}
	if k.Sign() <= 0 || k.Cmp(curveOrder) >= 0 {
		return nil, fmt.Errorf("private key out of curve range")
	}
	return k, nil
}

// CurveOrder returns a copy of the Stark curve order.
func CurveOrder() *big.Int {
	return new(big.Int).Set(curveOrder)
}
