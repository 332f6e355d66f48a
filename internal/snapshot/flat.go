package snapshot

import (
	"encoding/json"
	"fmt"
)

// flatEnvelope is the self-describing envelope the second broadcast
// listener serves (§4.12): the same snapshot/delta payloads as the binary
// codec, flattened to a keyed document so thin clients without the binary
// schema can still consume frames. Exactly one of Snapshot/Delta is set.
type flatEnvelope struct {
	Snapshot *WorldSnapshot `json:"snapshot,omitempty"`
	Delta    *Delta         `json:"delta,omitempty"`
}

// EncodeSnapshotFlat serializes a full snapshot into the flat envelope
// payload.
func EncodeSnapshotFlat(s *WorldSnapshot) ([]byte, error) {
	data, err := json.Marshal(flatEnvelope{Snapshot: s})
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode flat snapshot: %w", err)
	}
	return data, nil
}

// EncodeDeltaFlat serializes a delta into the flat envelope payload.
func EncodeDeltaFlat(d *Delta) ([]byte, error) {
	data, err := json.Marshal(flatEnvelope{Delta: d})
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode flat delta: %w", err)
	}
	return data, nil
}

// DecodeFlat parses a flat envelope payload. Exactly one return value is
// non-nil on success.
func DecodeFlat(payload []byte) (*WorldSnapshot, *Delta, error) {
	var env flatEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, nil, fmt.Errorf("snapshot: decode flat envelope: %w", err)
	}
	if env.Snapshot == nil && env.Delta == nil {
		return nil, nil, fmt.Errorf("snapshot: flat envelope carries neither snapshot nor delta")
	}
	return env.Snapshot, env.Delta, nil
}
