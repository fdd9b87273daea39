package model

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// AccountSize is the serialized size of a Vault:
// 32 + 2*4 + 2*4 + 2*8 + 2*8 + 1 + 32 + 1 + 8 + 8 + 8.
const AccountSize = 138

// MarshalAccount encodes v in the fixed little-endian Borsh layout.
func MarshalAccount(v *Vault) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(AccountSize)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode vault account: %w", err)
	}
	if buf.Len() != AccountSize {
		return nil, fmt.Errorf("encode vault account: got %d bytes, want %d", buf.Len(), AccountSize)
	}
	return buf.Bytes(), nil
}

// UnmarshalAccount decodes an account written by MarshalAccount.
func UnmarshalAccount(data []byte) (*Vault, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("decode vault account: got %d bytes, want %d", len(data), AccountSize)
	}
	var v Vault
	if err := bin.NewBorshDecoder(data).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode vault account: %w", err)
	}
	return &v, nil
}
