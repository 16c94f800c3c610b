package rpc

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ConnectivityError means the node could not be reached or answered the
// handshake with something unusable.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("node %s unreachable: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// CallError wraps a failed call submission: transport failure, node-side
// error (including reverts), malformed response or cancellation.
type CallError struct {
	Method string
	Err    error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Method, e.Err)
	var de gethrpc.DataError
	if errors.As(e.Err, &de) {
		if data, ok := de.ErrorData().(string); ok && data != "" {
			msg += " (data " + data + ")"
		} else if b, ok := de.ErrorData().([]byte); ok && len(b) > 0 {
			msg += " (data " + hexutil.Encode(b) + ")"
		}
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// nodeAnswered reports whether err is a JSON-RPC error object returned by
// the node, meaning the transport itself is healthy.
func nodeAnswered(err error) bool {
	var re gethrpc.Error
	return errors.As(err, &re)
}
