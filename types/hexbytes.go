package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HexBytes is a byte slice that travels as a 0x prefixed hex string in JSON.
// Decoding also accepts strings without the prefix.
type HexBytes []byte

func (b HexBytes) String() string {
	return hexutil.Encode(b)
}

func (b HexBytes) MarshalText() ([]byte, error) {
	return hexutil.Bytes(b).MarshalText()
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	decoded, err := HexStringToHexBytes(string(text))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes decodes s, with or without the 0x prefix.
func HexStringToHexBytes(s string) (HexBytes, error) {
	return hexutil.Decode("0x" + TrimHex(s))
}

// TrimHex removes surrounding spaces and the 0x prefix of s.
func TrimHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
