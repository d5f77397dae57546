package ethereum

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer is the secp256k1 key of a ledger identity. Its address is the
// identity the registry knows the caller by.
type Signer ecdsa.PrivateKey

func (s *Signer) key() *ecdsa.PrivateKey {
	return (*ecdsa.PrivateKey)(s)
}

// Address returns the identity of the signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// HexPrivateKey returns the private key bytes, hex encoded by HexBytes.
func (s *Signer) HexPrivateKey() types.HexBytes {
	return ethcrypto.FromECDSA(s.key())
}

// Sign signs msg as an Ethereum personal message.
func (s *Signer) Sign(msg []byte) (*ECDSASignature, error) {
	return Sign(msg, s.key())
}

// NewSigner returns a signer with a random key.
func NewSigner() (*Signer, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(key), nil
}

// NewSignerFromHex loads a hex private key, with or without the 0x prefix.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(types.TrimHex(hexKey))
	if err != nil {
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	return (*Signer)(key), nil
}

// NewSignerFromSeed derives a key from the keccak256 hash of seed. Only
// meant for tests and local setups.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	key, err := ethcrypto.ToECDSA(ethcrypto.Keccak256(seed))
	if err != nil {
		return nil, fmt.Errorf("could not derive key: %w", err)
	}
	return (*Signer)(key), nil
}

// Sign signs msg as an Ethereum personal message with privKey.
func Sign(msg []byte, privKey *ecdsa.PrivateKey) (*ECDSASignature, error) {
	raw, err := ethcrypto.Sign(HashMessage(msg), privKey)
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	return New(raw)
}

// HashMessage returns the keccak256 hash of data under the Ethereum personal
// message prefix.
func HashMessage(data []byte) []byte {
	return accounts.TextHash(data)
}
