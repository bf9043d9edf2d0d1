package ledger

import (
	"context"
	"fmt"
	"slices"
)

// apply mutates the roster for an appended transition. The caller holds
// g.mu and has already extended the chain. It returns the added member, if
// any.
func (l *Ledger) apply(ctx context.Context, g *group, action Action) (string, error) {
	switch a := action.(type) {
	case Invite:
		ok, err := l.resolver.IsRegistered(ctx, a.Invitee)
		if err != nil {
			return "", fmt.Errorf("resolve invitee %s: %w", a.Invitee, err)
		}
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownInvitee, a.Invitee)
		}
		if slices.Contains(g.members, a.Invitee) {
			return "", nil
		}
		g.members = append(g.members, a.Invitee)
		return a.Invitee, nil
	default:
		return "", nil
	}
}
