package domain

import "strings"

// Identity is an opaque account identity such as a wallet address or public key.
type Identity string

// IsZero reports whether the identity is blank.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string {
	return string(i)
}

// Role grants access beyond record ownership.
type Role string

const (
	RoleOperator Role = "OPERATOR"
)
