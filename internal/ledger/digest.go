package ledger

import (
	"encoding/base64"
	"fmt"
)

// Digester produces the bytes that members sign for a transition.
type Digester interface {
	Digest(prevState, state string, op Operation) ([]byte, error)
}

// ConcatDigest is the wire-compatible digest: decoded prev_state, decoded
// state, op type and op data, concatenated with no separators.
//
// The layout is ambiguous at field boundaries: {type "ab", data "c"} and
// {type "a", data "bc"} produce the same digest, as do state pairs whose
// decoded bytes split differently. Signatures therefore do not bind the
// type/data split. Changing the layout would invalidate every client
// signature, so a length-prefixed format belongs behind a new Digester.
type ConcatDigest struct{}

func (ConcatDigest) Digest(prevState, state string, op Operation) ([]byte, error) {
	prev, err := DecodeState(prevState)
	if err != nil {
		return nil, err
	}
	next, err := DecodeState(state)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prev)+len(next)+len(op.Type)+len(op.Data))
	out = append(out, prev...)
	out = append(out, next...)
	out = append(out, op.Type...)
	out = append(out, op.Data...)
	return out, nil
}

// DecodeState decodes a standard-base64 state label.
func DecodeState(label string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(label)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedState, label)
	}
	return b, nil
}
