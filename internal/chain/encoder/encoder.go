// Package encoder builds eth_call payloads for contract functions that take
// no arguments and return nothing. The payload is the 4-byte selector
// keccak256("name()")[:4].
package encoder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var reIdent = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// EncodingError reports a function name that cannot form a canonical signature.
type EncodingError struct {
	Name   string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode function %q: %s", e.Name, e.Reason)
}

// Validate checks that name is a Solidity identifier.
func Validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return &EncodingError{Name: name, Reason: "empty name"}
	}
	if !reIdent.MatchString(name) {
		return &EncodingError{Name: name, Reason: "not an identifier"}
	}
	return nil
}

// Signature returns the canonical signature, e.g. "closeDeposit()".
func Signature(name string) string { return name + "()" }

// Selector returns the first four bytes of keccak256(Signature(name)).
// It does not validate name.
func Selector(name string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(Signature(name)))[:4])
	return sel
}

// Encode returns the call data for name().
func Encode(name string) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}
	m := abi.NewMethod(name, name, abi.Function, "nonpayable", false, false, abi.Arguments{}, abi.Arguments{})
	contract := abi.ABI{Methods: map[string]abi.Method{name: m}}
	data, err := contract.Pack(name)
	if err != nil {
		return nil, &EncodingError{Name: name, Reason: err.Error()}
	}
	return data, nil
}
