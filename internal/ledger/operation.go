package ledger

import (
	"fmt"
	"strings"
)

// OpInvite is the only operation type the ledger interprets.
const OpInvite = "invite"

// Operation is the payload of a transition. Type is a free-form tag; Data is
// interpreted according to Type.
type Operation struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Action is the decoded form of an Operation.
type Action interface {
	isAction()
}

// Invite adds Invitee to the roster.
type Invite struct {
	Inviter string
	Invitee string
}

// Unrecognized is any operation the ledger does not interpret. It is kept in
// history and never touches the roster.
type Unrecognized struct {
	Type string
	Data string
}

func (Invite) isAction()       {}
func (Unrecognized) isAction() {}

// Decode classifies op. Type matching is exact: "INVITE" is Unrecognized.
func (op Operation) Decode() (Action, error) {
	if op.Type != OpInvite {
		return Unrecognized{Type: op.Type, Data: op.Data}, nil
	}
	fields := strings.Fields(op.Data)
	// Trailing tokens are rejected, not ignored.
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: want \"<inviter> <invitee>\", got %q", ErrMalformedInvite, op.Data)
	}
	return Invite{Inviter: fields[0], Invitee: fields[1]}, nil
}

// InviteOperation builds an invite operation.
func InviteOperation(inviter, invitee string) Operation {
	return Operation{Type: OpInvite, Data: inviter + " " + invitee}
}
