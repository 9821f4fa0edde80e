// Package chunk defines the key type used to address units of table data
// throughout the storage hierarchy.
package chunk

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key identifies one uniquely addressable unit of table data, e.g.
// {database, table, column, fragment}. Keys compare lexicographically
// component by component, which makes a shorter key a prefix of every
// longer key sharing its leading components. Keys are immutable once
// handed to a pool or store.
type Key []int32

// ScratchNamespace is the leading component of keys for anonymous
// scratch buffers. It sorts before every real table key.
const ScratchNamespace int32 = -1

// NewScratchKey returns a key in the scratch namespace for the given id.
func NewScratchKey(id int32) Key {
	return Key{ScratchNamespace, id}
}

// Clone returns a copy of k.
func (k Key) Clone() Key {
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// Equal reports whether k and other have identical components.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// Less reports whether k orders before other lexicographically.
func (k Key) Less(other Key) bool {
	n := len(k)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if k[i] != other[i] {
			return k[i] < other[i]
		}
	}
	return len(k) < len(other)
}

// HasPrefix reports whether prefix matches the leading components of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// IsScratch reports whether k lives in the scratch namespace.
func (k Key) IsScratch() bool {
	return len(k) > 0 && k[0] == ScratchNamespace
}

// Encoded returns a binary form of k whose byte-wise ordering matches
// the component-wise ordering of keys, including negative components.
// Components are fixed width, so any whole-component byte prefix of an
// encoded key is itself the encoding of a key prefix. The encoded form
// is used as a map key in the pools and as the record key in the
// persistent store.
func (k Key) Encoded() []byte {
	b := make([]byte, 4*len(k))
	for i, v := range k {
		// flip the sign bit so negative components sort first
		binary.BigEndian.PutUint32(b[i*4:], uint32(v)^0x80000000)
	}
	return b
}

// DecodeKey is the inverse of Encoded.
func DecodeKey(b []byte) (Key, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("encoded key length %d is not a multiple of 4", len(b))
	}
	k := make(Key, len(b)/4)
	for i := range k {
		k[i] = int32(binary.BigEndian.Uint32(b[i*4:]) ^ 0x80000000)
	}
	return k, nil
}

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
