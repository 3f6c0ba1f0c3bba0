package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ID is an opaque 16-byte identifier, hex-encoded at the wire boundary.
type ID [16]byte

// Empty is the zero value of ID, used as a "not set" sentinel.
var Empty ID

// Generate returns a fresh random ID.
func Generate() ID {
	var id ID
	_, _ = rand.Read(id[:])
	return id
}

// String returns the hex representation of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID.
func (id ID) Bytes() []byte {
	return id[:]
}

// MarshalJSON encodes the ID as a hex string.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes an ID from a hex string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("ids: invalid JSON id literal %q", data)
	}
	parsed, err := FromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// FromString decodes an ID from a hex string.
func FromString(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: invalid id length: expected %d, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// SessionID identifies a bidding session (one per connected client).
type SessionID = ID

// TxID identifies a submitted transaction.
type TxID = ID
