// Package ethereum provides Ethereum ECDSA signatures over personal messages,
// used to authenticate ledger calls.
package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of R || S || V.
	SignatureLength = ethcrypto.SignatureLength
	// SignatureMinLength is the size of a signature without recovery byte.
	SignatureMinLength = SignatureLength - 1
)

var errInvalidSignature = errors.New("invalid signature")

// ECDSASignature is a secp256k1 signature with the recovery id in the raw
// 0-3 range.
type ECDSASignature struct {
	R        *big.Int
	S        *big.Int
	recovery byte
}

// New parses R || S with an optional recovery byte, accepted raw (0-3) or in
// the legacy 27-30 form.
func New(signature []byte) (*ECDSASignature, error) {
	if len(signature) < SignatureMinLength {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", errInvalidSignature, len(signature), SignatureMinLength)
	}
	sig := &ECDSASignature{
		R: new(big.Int).SetBytes(signature[:32]),
		S: new(big.Int).SetBytes(signature[32:64]),
	}
	if len(signature) > SignatureMinLength {
		v := signature[64]
		if v >= 27 {
			v -= 27
		}
		if v > 3 {
			return nil, fmt.Errorf("%w: recovery id %d", errInvalidSignature, signature[64])
		}
		sig.recovery = v
	}
	return sig, nil
}

// HexToSignature decodes a hex signature, with or without the 0x prefix.
func HexToSignature(hexSignature string) (*ECDSASignature, error) {
	raw, err := types.HexStringToHexBytes(hexSignature)
	if err != nil {
		return nil, err
	}
	return New(raw)
}

// Valid reports whether both R and S are set.
func (sig *ECDSASignature) Valid() bool {
	return sig != nil && sig.R != nil && sig.S != nil
}

// Bytes returns R || S || V with V in the 0-3 range.
func (sig *ECDSASignature) Bytes() types.HexBytes {
	out := make([]byte, SignatureLength)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	out[64] = sig.recovery
	return out
}

// Signer recovers the address that signed message as a personal message.
func (sig *ECDSASignature) Signer(message []byte) (common.Address, error) {
	if !sig.Valid() {
		return common.Address{}, errInvalidSignature
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(message), sig.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", errInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
