package ledger

import (
	"context"
	"errors"
	"fmt"

	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
	"github.com/gezibash/arc-ledger/pkg/identity"
)

// Threshold is the strict majority of a roster of n members.
func Threshold(n int) int {
	return n/2 + 1
}

// verifyQuorum checks signers in order against digest. It stops as soon as
// threshold valid signatures have been seen, so trailing entries are never
// resolved or checked. One bad signature rejects the whole proposal.
//
// Signers are not de-duplicated: a member listed twice with two valid
// signatures counts twice.
func (l *Ledger) verifyQuorum(ctx context.Context, rosterSize int, digest []byte, signers []SignedBy) error {
	threshold := Threshold(rosterSize)
	valid := 0
	for _, s := range signers {
		if valid >= threshold {
			break
		}
		pk, err := l.resolver.SigningKey(ctx, s.Username)
		if err != nil {
			if errors.Is(err, arcerrors.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownSigner, s.Username)
			}
			return fmt.Errorf("resolve signer %s: %w", s.Username, err)
		}
		ok := identity.Verify(pk, digest, identity.Signature{Algo: pk.Algo, Bytes: s.Signature})
		l.metrics.ObserveSignature(ok)
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, s.Username)
		}
		valid++
	}
	if valid < threshold {
		return fmt.Errorf("%w: %d of %d", ErrQuorumNotMet, valid, threshold)
	}
	return nil
}
