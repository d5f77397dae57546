package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ProofArtifact is the off-ledger ballot proof document referenced by a
// voter's submission. The byte fields travel as standard base64 strings in
// JSON, which is what encoding/json does for []byte.
type ProofArtifact struct {
	Log2N                uint32 `json:"log2_n"`
	CommittedBallot      []byte `json:"committed_ballot"`
	CommittedPermutation []byte `json:"committed_permutation"`
	Proof                []byte `json:"proof"`
}

// UnmarshalJSON decodes the artifact and requires the three committed fields.
func (a *ProofArtifact) UnmarshalJSON(data []byte) error {
	type plain ProofArtifact
	var raw struct {
		plain
		CommittedBallot      *string `json:"committed_ballot"`
		CommittedPermutation *string `json:"committed_permutation"`
		Proof                *string `json:"proof"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		name string
		val  *string
		dst  *[]byte
	}{
		{"committed_ballot", raw.CommittedBallot, &a.CommittedBallot},
		{"committed_permutation", raw.CommittedPermutation, &a.CommittedPermutation},
		{"proof", raw.Proof, &a.Proof},
	}
	a.Log2N = raw.Log2N
	for _, f := range fields {
		if f.val == nil {
			return fmt.Errorf("missing field %q", f.name)
		}
		decoded, err := base64.StdEncoding.DecodeString(*f.val)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.name, err)
		}
		*f.dst = decoded
	}
	return nil
}
