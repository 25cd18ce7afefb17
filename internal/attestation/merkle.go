package attestation

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier checks a proof bundle and returns its decoded payload.
type Verifier interface {
	Verify(ctx context.Context, proof Proof) (Payload, error)
}

// RootSource resolves the confirmed Merkle root for a voting round.
type RootSource interface {
	Root(ctx context.Context, votingRound uint64) (common.Hash, error)
}

// StaticRootSource serves roots from a fixed map. Development and tests.
type StaticRootSource map[uint64]common.Hash

func (s StaticRootSource) Root(_ context.Context, votingRound uint64) (common.Hash, error) {
	root, ok := s[votingRound]
	if !ok {
		return common.Hash{}, fmt.Errorf("no merkle root for voting round %d", votingRound)
	}
	return root, nil
}

// ParseRootMap parses a comma-separated "round=hash" list into a static
// root source.
func ParseRootMap(raw string) (StaticRootSource, error) {
	roots := make(StaticRootSource)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		round, hash, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed root entry %q", pair)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(round), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed voting round in %q: %w", pair, err)
		}
		roots[n] = common.HexToHash(strings.TrimSpace(hash))
	}
	return roots, nil
}

// MerkleVerifier verifies keccak256 Merkle inclusion of the attested
// response against the root of the proof's voting round.
type MerkleVerifier struct {
	roots RootSource
}

func NewMerkleVerifier(roots RootSource) *MerkleVerifier {
	return &MerkleVerifier{roots: roots}
}

// Verify folds the inclusion path over the response leaf and compares the
// result to the round root. Path nodes are combined in sorted order, so the
// proof does not carry left/right direction bits.
func (v *MerkleVerifier) Verify(ctx context.Context, proof Proof) (Payload, error) {
	root, err := v.roots.Root(ctx, proof.Data.VotingRound)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	node := LeafHash(proof.Data)
	for _, sibling := range proof.MerkleProof {
		node = hashPair(node, sibling)
	}

	if node != root {
		return Payload{}, fmt.Errorf("%w: merkle root mismatch for round %d", ErrInvalidProof, proof.Data.VotingRound)
	}

	payload, err := DecodePayload(proof.Data.ResponseBody.ABIEncodedData)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return payload, nil
}

// LeafHash computes the leaf commitment for an attested response. The round
// and encoded data are both bound so a response cannot be replayed into a
// different round's tree.
func LeafHash(resp Response) common.Hash {
	var round [8]byte
	for i := 0; i < 8; i++ {
		round[7-i] = byte(resp.VotingRound >> (8 * i))
	}
	return crypto.Keccak256Hash(
		resp.AttestationType.Bytes(),
		resp.SourceID.Bytes(),
		round[:],
		resp.ResponseBody.ABIEncodedData,
	)
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// InsecureVerifier decodes payloads without checking inclusion. Local
// development only; never wire it in a deployment that accepts real proofs.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(_ context.Context, proof Proof) (Payload, error) {
	payload, err := DecodePayload(proof.Data.ResponseBody.ABIEncodedData)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return payload, nil
}
