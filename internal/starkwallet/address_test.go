package starkwallet

import (
	"errors"
	"testing"

	"github.com/robz323/alcancia-digital/pkg/config"
)

func TestPublicKeyIsDeterministic(t *testing.T) {
	key, err := DerivePrivateKey("user-1", "secret", config.VariantOZ)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	a := PublicKey(key)
	if a.IsZero() {
		t.Fatal("public key must be nonzero")
	}
	if b := PublicKey(key); a.String() != b.String() {
		t.Fatalf("public key must be stable: %s vs %s", a, b)
	}
}

func TestComputeAccountDetailsIsPure(t *testing.T) {
	key, err := DerivePrivateKey("user-1", "secret", config.VariantOZ)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	a, err := ComputeAccountDetails(key, config.VariantOZ, "")
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	b, err := ComputeAccountDetails(key, config.VariantOZ, "")
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if a.PrecalculatedAddress.String() != b.PrecalculatedAddress.String() {
		t.Fatalf("address must be stable: %s vs %s",
			a.PrecalculatedAddress, b.PrecalculatedAddress)
	}
	if a.PublicKey.String() != b.PublicKey.String() {
		t.Fatal("public key must be stable")
	}
}

func TestComputeAccountDetailsCalldataShape(t *testing.T) {
	key, _ := DerivePrivateKey("user-1", "secret", config.VariantOZ)

	oz, err := ComputeAccountDetails(key, config.VariantOZ, "")
	if err != nil {
		t.Fatalf("oz compute failed: %v", err)
	}
	if len(oz.ConstructorCalldata) != 1 {
		t.Fatalf("oz calldata must be [pub], got %d entries", len(oz.ConstructorCalldata))
	}
	if oz.ConstructorCalldata[0].String() != oz.PublicKey.String() {
		t.Fatal("oz calldata must start with the public key")
	}

	argent, err := ComputeAccountDetails(key, config.VariantArgent, "")
	if err != nil {
		t.Fatalf("argent compute failed: %v", err)
	}
	if len(argent.ConstructorCalldata) != 2 {
		t.Fatalf("argent calldata must be [pub, 0], got %d entries", len(argent.ConstructorCalldata))
	}
	if !argent.ConstructorCalldata[1].IsZero() {
		t.Fatal("argent guardian must be zero")
	}
}

func TestVariantChangesAddress(t *testing.T) {
	key, _ := DerivePrivateKey("user-1", "secret", config.VariantOZ)

	oz, _ := ComputeAccountDetails(key, config.VariantOZ, "")
	argent, _ := ComputeAccountDetails(key, config.VariantArgent, "")
	if oz.PrecalculatedAddress.String() == argent.PrecalculatedAddress.String() {
		t.Fatal("different variants must precompute different addresses")
	}
}

func TestClassHashOverride(t *testing.T) {
	key, _ := DerivePrivateKey("user-1", "secret", config.VariantOZ)

	base, _ := ComputeAccountDetails(key, config.VariantOZ, "")
	overridden, err := ComputeAccountDetails(key, config.VariantOZ, ArgentAccountClassHash)
	if err != nil {
		t.Fatalf("override compute failed: %v", err)
	}
	if base.PrecalculatedAddress.String() == overridden.PrecalculatedAddress.String() {
		t.Fatal("class hash override must change the address")
	}
	if overridden.ClassHash.String() == base.ClassHash.String() {
		t.Fatal("override must replace the default class hash")
	}
}

func TestUnknownVariantNeedsOverride(t *testing.T) {
	key, _ := DerivePrivateKey("user-1", "secret", config.VariantOZ)

	_, err := ComputeAccountDetails(key, "custom", "")
	if !errors.Is(err, ErrNoClassHash) {
		t.Fatalf("expected ErrNoClassHash, got %v", err)
	}
}

func TestAddressSaltIsPublicKey(t *testing.T) {
	key, _ := DerivePrivateKey("user-1", "secret", config.VariantOZ)

	details, _ := ComputeAccountDetails(key, config.VariantOZ, "")
	if details.AddressSalt.String() != details.PublicKey.String() {
		t.Fatal("salt must equal the public key")
	}
}
