package starkwallet

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/contracts"
	"github.com/NethermindEth/starknet.go/curve"
	"github.com/NethermindEth/starknet.go/utils"

	"github.com/robz323/alcancia-digital/pkg/config"
)

// Account class hashes on Sepolia.
const (
	OZAccountClassHash     = "0x61dac032f228abef9c6626f995015233097ae253a7f72d68552db02f2971b8f"
	ArgentAccountClassHash = "0x036078334509b514626504edc9fb252328d1a240e4e948bef8d0c08dff45927f"
)

// ErrNoClassHash means no class hash is configured and no built-in default
// applies. Callers fall back to a provisional address (the raw public key).
var ErrNoClassHash = errors.New("starkwallet: no class hash for account variant")

// SmartAccountDetails is everything needed to deploy (or precompute the
// address of) a smart account. It is a pure function of the private key and
// the configuration; it is derived on demand and never stored.
type SmartAccountDetails struct {
	ClassHash            *felt.Felt
	PublicKey            *felt.Felt
	ConstructorCalldata  []*felt.Felt
	AddressSalt          *felt.Felt
	PrecalculatedAddress *felt.Felt
}

// PublicKey derives the Stark curve public key (x coordinate) for a private
// key.
func PublicKey(privKey *big.Int) *felt.Felt {
	x, _ := curve.PrivateKeyToPoint(privKey)
	return utils.BigIntToFelt(x)
}

// ComputeAccountDetails precomputes the smart account address for a private
// key using the standard Starknet contract-address formula with deployer 0.
// Identical inputs always produce identical output.
func ComputeAccountDetails(privKey *big.Int, variant, classHashOverride string) (*SmartAccountDetails, error) {
	pub := PublicKey(privKey)

	classHashHex, err := resolveClassHash(variant, classHashOverride)
	if err != nil {
		return nil, err
	}
	classHash, err := utils.HexToFelt(classHashHex)
	if err != nil {
		return nil, fmt.Errorf("parse class hash %q: %w", classHashHex, err)
	}

	calldata, err := constructorCalldata(variant, pub)
	if err != nil {
		return nil, err
	}

	// Salt is the public key; deployer address is zero for self-deployed
	// accounts.
	address := contracts.PrecomputeAddress(&felt.Zero, pub, classHash, calldata)

	return &SmartAccountDetails{
		ClassHash:            classHash,
		PublicKey:            pub,
		ConstructorCalldata:  calldata,
		AddressSalt:          pub,
		PrecalculatedAddress: address,
	}, nil
}

// resolveClassHash picks the explicit override first, then the built-in
// default for the variant.
func resolveClassHash(variant, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	switch variant {
	case config.VariantOZ:
		return OZAccountClassHash, nil
	case config.VariantArgent:
		return ArgentAccountClassHash, nil
	default:
		return "", ErrNoClassHash
	}
}

// constructorCalldata builds the ordered initializer arguments used in both
// deployment and address derivation.
func constructorCalldata(variant string, pub *felt.Felt) ([]*felt.Felt, error) {
	switch variant {
	case config.VariantOZ:
		return []*felt.Felt{pub}, nil
	case config.VariantArgent:
		// owner, guardian=0
		return []*felt.Felt{pub, &felt.Zero}, nil
	default:
		return nil, fmt.Errorf("starkwallet: unknown account variant %q", variant)
	}
}
