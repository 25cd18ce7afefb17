// Package attestation verifies externally-attested indicator readings. The
// engine consumes finished proof bundles only; requesting attestations and
// building Merkle trees belong to the attestation network and its clients.
package attestation

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidProof is returned when a proof bundle fails Merkle verification
// or its attested payload cannot be decoded.
var ErrInvalidProof = errors.New("invalid attestation proof")

// Proof is the bundle submitted to the update pipeline: a Merkle inclusion
// path plus the attested response it claims membership for.
type Proof struct {
	MerkleProof []common.Hash `json:"merkle_proof"`
	Data        Response      `json:"data"`
}

// Response is the attested response produced by the verification network for
// one JSON-API attestation round.
type Response struct {
	AttestationType     common.Hash  `json:"attestation_type"`
	SourceID            common.Hash  `json:"source_id"`
	VotingRound         uint64       `json:"voting_round"`
	LowestUsedTimestamp uint64       `json:"lowest_used_timestamp"`
	RequestBody         RequestBody  `json:"request_body"`
	ResponseBody        ResponseBody `json:"response_body"`
}

// RequestBody describes what the attestation network was asked to fetch.
// The engine does not interpret it; it is part of the attested material.
type RequestBody struct {
	URL           string `json:"url"`
	PostprocessJq string `json:"postprocess_jq"`
	ABISignature  string `json:"abi_signature"`
}

// ResponseBody carries the ABI-encoded attested data.
type ResponseBody struct {
	ABIEncodedData hexutil.Bytes `json:"abi_encoded_data"`
}

// Payload is the decoded attested reading that drives the indicator
// registry. Value and Timestamp are fixed-point and unix-seconds integers.
type Payload struct {
	Indicator string
	Timestamp uint64
	Value     uint64
}
