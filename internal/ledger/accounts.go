package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramID owns every curve custody address.
var ProgramID = solana.MustPublicKeyFromBase58("5qysrynxHwehy7mFaJ7JH1PJNaE6bmcrk92Mu1oPbFHy")

const (
	CurveSeed  = "bonding_curve"
	ConfigSeed = "config"
)

// DeriveCustody returns the program-derived address that holds a curve's
// base currency and tokens, along with its bump seed.
func DeriveCustody(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(CurveSeed), mint.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive custody for %s: %w", mint, err)
	}
	return addr, bump, nil
}

// DeriveConfig returns the address of the global configuration record.
func DeriveConfig(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive config address: %w", err)
	}
	return addr, nil
}

// NewMintAddress generates a fresh token identity.
func NewMintAddress() (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("generate mint key: %w", err)
	}
	return key.PublicKey(), nil
}
