package domain

import "strings"

// Identity names a participant. The engine treats it as opaque and only
// compares for equality; transports decide its format (the HTTP API uses
// EIP-55 checksummed addresses).
type Identity string

// IsZero reports whether the identity is empty after trimming whitespace.
func (id Identity) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

func (id Identity) String() string { return string(id) }
