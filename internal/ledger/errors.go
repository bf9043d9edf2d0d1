package ledger

import (
	"errors"
	"fmt"

	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
)

var (
	ErrGroupNotFound    = fmt.Errorf("group %w", arcerrors.ErrNotFound)
	ErrStateNotFound    = fmt.Errorf("state %w", arcerrors.ErrNotFound)
	ErrAlreadyExists    = fmt.Errorf("group %w", arcerrors.ErrAlreadyExists)
	ErrStaleOrForked    = fmt.Errorf("stale or forked proposal: %w", arcerrors.ErrConflict)
	ErrUnknownSigner    = fmt.Errorf("unknown signer: %w", arcerrors.ErrUnauthorized)
	ErrInvalidSignature = fmt.Errorf("invalid signature: %w", arcerrors.ErrUnauthorized)
	ErrQuorumNotMet     = fmt.Errorf("quorum not met: %w", arcerrors.ErrUnauthorized)
	ErrUnknownInvitee   = fmt.Errorf("unknown invitee: %w", arcerrors.ErrUnprocessable)
	ErrMalformedState   = fmt.Errorf("malformed state label: %w", arcerrors.ErrInvalidInput)
	ErrMalformedInvite  = fmt.Errorf("malformed invite: %w", arcerrors.ErrInvalidInput)
	ErrInvalidGroup     = fmt.Errorf("group name or owner: %w", arcerrors.ErrInvalidInput)
)

var reasons = []struct {
	err  error
	code string
}{
	{ErrGroupNotFound, "group_not_found"},
	{ErrStateNotFound, "state_not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrStaleOrForked, "stale_or_forked_proposal"},
	{ErrUnknownSigner, "unknown_signer"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrQuorumNotMet, "quorum_not_met"},
	{ErrUnknownInvitee, "unknown_invitee"},
	{ErrMalformedState, "malformed_state"},
	{ErrMalformedInvite, "malformed_invite"},
	{ErrInvalidGroup, "invalid_group"},
}

// Reason returns a stable machine-readable code for err. It returns "" for a
// nil error and "internal" for errors outside the ledger taxonomy.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "internal"
}
