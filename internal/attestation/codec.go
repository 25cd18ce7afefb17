package attestation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// payloadTuple mirrors the attested ABI signature
// tuple(string indicator, uint256 timestamp, uint256 value).
type payloadTuple struct {
	Indicator string   `abi:"indicator"`
	Timestamp *big.Int `abi:"timestamp"`
	Value     *big.Int `abi:"value"`
}

var payloadArgs = mustPayloadArgs()

func mustPayloadArgs() abi.Arguments {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "indicator", Type: "string"},
		{Name: "timestamp", Type: "uint256"},
		{Name: "value", Type: "uint256"},
	})
	if err != nil {
		panic(fmt.Sprintf("attestation: build payload ABI type: %v", err))
	}
	return abi.Arguments{{Type: tupleType}}
}

// DecodePayload unpacks the attested data into a Payload. Timestamps and
// values outside uint64 range are rejected rather than truncated.
func DecodePayload(data []byte) (Payload, error) {
	values, err := payloadArgs.Unpack(data)
	if err != nil {
		return Payload{}, fmt.Errorf("unpack attested payload: %w", err)
	}

	tuple := abi.ConvertType(values[0], new(payloadTuple)).(*payloadTuple)

	if tuple.Indicator == "" {
		return Payload{}, fmt.Errorf("attested payload has empty indicator")
	}
	if !tuple.Timestamp.IsUint64() || !tuple.Value.IsUint64() {
		return Payload{}, fmt.Errorf("attested payload out of uint64 range")
	}

	return Payload{
		Indicator: tuple.Indicator,
		Timestamp: tuple.Timestamp.Uint64(),
		Value:     tuple.Value.Uint64(),
	}, nil
}

// EncodePayload packs a Payload into the attested ABI layout. Used by tests
// and local tooling that fabricate proof bundles.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := payloadArgs.Pack(payloadTuple{
		Indicator: p.Indicator,
		Timestamp: new(big.Int).SetUint64(p.Timestamp),
		Value:     new(big.Int).SetUint64(p.Value),
	})
	if err != nil {
		return nil, fmt.Errorf("pack attested payload: %w", err)
	}
	return data, nil
}
