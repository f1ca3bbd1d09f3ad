package starkwallet

import (
	"math/big"
	"testing"
	"testing/quick"
)

func TestDeriveIsDeterministic(t *testing.T) {
	const secret = "shared-test-secret"

	a, err := DerivePrivateKey("user-1", secret, "oz")
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	b, err := DerivePrivateKey("user-1", secret, "oz")
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if a.Cmp(b) != 0 {
		t.Fatalf("same inputs must yield the same key: %s vs %s", a, b)
	}
}

func TestDeriveVariantChangesKey(t *testing.T) {
	const secret = "shared-test-secret"

	oz, _ := DerivePrivateKey("user-1", secret, "oz")
	argent, _ := DerivePrivateKey("user-1", secret, "argent")
	if oz.Cmp(argent) == 0 {
		t.Fatal("different variants must yield different keys")
	}
}

func TestDeriveSecretChangesKey(t *testing.T) {
	a, _ := DerivePrivateKey("user-1", "secret-a", "oz")
	b, _ := DerivePrivateKey("user-1", "secret-b", "oz")
	if a.Cmp(b) == 0 {
		t.Fatal("different secrets must yield different keys")
	}
}

// Property: any entity id derives a scalar in [1, N-1], and distinct entity
// ids do not collide.
func TestDeriveRangeAndNoCollisions(t *testing.T) {
	const secret = "property-secret"
	seen := make(map[string]string)

	property := func(entityID string) bool {
		k, err := DerivePrivateKey(entityID, secret, "oz")
		if err != nil {
			return false
		}
		if k.Sign() <= 0 || k.Cmp(curveOrder) >= 0 {
			t.Logf("scalar out of range for %q: %s", entityID, k)
			return false
		}
		hex := KeyToHex(k)
		if prev, ok := seen[hex]; ok && prev != entityID {
			t.Logf("collision: %q and %q both derive %s", prev, entityID, hex)
			return false
		}
		seen[hex] = entityID
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Errorf("property failed: %v", err)
	}
}

func TestRandomWithoutSecret(t *testing.T) {
	a, err := DerivePrivateKey("user-1", "", "oz")
	if err != nil {
		t.Fatalf("random derive failed: %v", err)
	}
	b, err := DerivePrivateKey("user-1", "", "oz")
	if err != nil {
		t.Fatalf("random derive failed: %v", err)
	}
	if a.Sign() <= 0 || a.Cmp(curveOrder) >= 0 {
		t.Fatalf("random scalar out of range: %s", a)
	}
	// Two draws colliding would mean a broken CSPRNG.
	if a.Cmp(b) == 0 {
		t.Fatal("two random keys must not be equal")
	}
}

func TestKeyHexRoundTrip(t *testing.T) {
	k, _ := DerivePrivateKey("user-1", "secret", "oz")
	hex := KeyToHex(k)
	if len(hex) != 66 || hex[:2] != "0x" {
		t.Fatalf("unexpected hex form: %s", hex)
	}

	back, err := KeyFromHex(hex)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if back.Cmp(k) != 0 {
		t.Fatalf("round trip mismatch: %s vs %s", back, k)
	}
}

func TestKeyFromHexRejectsOutOfRange(t *testing.T) {
	if _, err := KeyFromHex("0x0"); err == nil {
		t.Error("zero key must be rejected")
	}
	over := new(big.Int).Add(CurveOrder(), big.NewInt(1))
	if _, err := KeyFromHex(KeyToHex(over)); err == nil {
		t.Error("key above the curve order must be rejected")
	}
	if _, err := KeyFromHex("not-hex"); err == nil {
		t.Error("non-hex input must be rejected")
	}
}
