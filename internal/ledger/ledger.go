// Package ledger implements the group transaction ledger: per-group
// append-only chains of state labels whose transitions are authorised by a
// strict majority of the current members' signatures.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/pkg/identity"
	"github.com/gezibash/arc-ledger/pkg/logging"
)

// Resolver is the identity lookup the ledger depends on.
type Resolver interface {
	SigningKey(ctx context.Context, username string) (identity.PublicKey, error)
	IsRegistered(ctx context.Context, username string) (bool, error)
}

// SignedBy is one member's signature over a transition digest.
type SignedBy struct {
	Username  string `json:"username"`
	Signature []byte `json:"signature"`
}

// Transaction is a proposed transition from PrevState to State.
type Transaction struct {
	PrevState string     `json:"prev_state"`
	State     string     `json:"state"`
	Operation Operation  `json:"operation"`
	SignedBy  []SignedBy `json:"signed_by"`
}

// Entry is one link of a group's history. Operation is nil for genesis.
type Entry struct {
	State     string     `json:"state"`
	Operation *Operation `json:"operation"`
}

// Receipt describes an appended transition.
type Receipt struct {
	Group string
	State string
	// Index is the position of State in the chain; genesis is 0.
	Index int
	// Added is the member the transition added, if any.
	Added string
}

type group struct {
	mu      sync.Mutex
	members []string
	states  []string
	ops     []*Operation
}

func (g *group) head() string {
	return g.states[len(g.states)-1]
}

// Ledger owns every group. It is safe for concurrent use; submissions to the
// same group are serialised, different groups proceed independently.
type Ledger struct {
	mu     sync.RWMutex
	groups map[string]*group

	resolver Resolver
	digester Digester
	metrics  *observability.Metrics
	log      *logging.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDigester replaces the wire digest.
func WithDigester(d Digester) Option {
	return func(l *Ledger) { l.digester = d }
}

// WithMetrics records ledger activity on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(l *Ledger) { l.log = log.WithComponent("ledger") }
}

// New creates an empty ledger that resolves signers through r.
func New(r Resolver, opts ...Option) *Ledger {
	l := &Ledger{
		groups:   make(map[string]*group),
		resolver: r,
		digester: ConcatDigest{},
		log:      logging.New(nil).WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register creates a group owned by owner at the genesis state. Registering
// a name that is taken leaves the existing group untouched and returns
// ErrAlreadyExists.
func (l *Ledger) Register(ctx context.Context, name, owner, genesis string) error {
	if name == "" || owner == "" {
		return ErrInvalidGroup
	}
	if _, err := DecodeState(genesis); err != nil {
		return err
	}

	l.mu.Lock()
	if _, ok := l.groups[name]; ok {
		l.mu.Unlock()
		l.log.WithGroup(name).WarnContext(ctx, "group already exists, ignoring registration", "owner", owner)
		return ErrAlreadyExists
	}
	l.groups[name] = &group{
		members: []string{owner},
		states:  []string{genesis},
		ops:     []*Operation{nil},
	}
	l.mu.Unlock()

	l.metrics.GroupRegistered()
	l.log.WithGroup(name).InfoContext(ctx, "group registered", "owner", owner, "state", genesis)
	return nil
}

func (l *Ledger) group(name string) (*group, error) {
	l.mu.RLock()
	g, ok := l.groups[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	return g, nil
}

// Exists reports whether a group is registered.
func (l *Ledger) Exists(name string) bool {
	_, err := l.group(name)
	return err == nil
}

// Submit verifies tx against the group's head and current roster, appends it,
// and applies its operation, all under the group's lock.
//
// Verification failures leave the group unchanged. ErrUnknownInvitee is
// reported after the append: the returned Receipt is non-nil and the
// transition stays in history even though the roster did not change.
func (l *Ledger) Submit(ctx context.Context, name string, tx Transaction) (rcpt *Receipt, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.submit",
		attribute.String("group", name),
		attribute.String("operation.type", tx.Operation.Type),
		attribute.Int("signers", len(tx.SignedBy)),
	)
	defer func() {
		outcome := "accepted"
		if err != nil {
			outcome = Reason(err)
		}
		l.metrics.ObserveTransition(outcome)
		op.End(err)
	}()

	g, err := l.group(name)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if tx.PrevState != g.head() {
		return nil, fmt.Errorf("%w: prev_state %q, head %q", ErrStaleOrForked, tx.PrevState, g.head())
	}
	action, err := tx.Operation.Decode()
	if err != nil {
		return nil, err
	}
	digest, err := l.digester.Digest(tx.PrevState, tx.State, tx.Operation)
	if err != nil {
		return nil, err
	}
	if err := l.verifyQuorum(ctx, len(g.members), digest, tx.SignedBy); err != nil {
		return nil, err
	}

	stored := tx.Operation
	g.states = append(g.states, tx.State)
	g.ops = append(g.ops, &stored)
	rcpt = &Receipt{Group: name, State: tx.State, Index: len(g.states) - 1}

	log := l.log.WithGroup(name)
	log.InfoContext(ctx, "transition appended", "state", tx.State, "type", tx.Operation.Type, "index", rcpt.Index)

	added, err := l.apply(ctx, g, action)
	if err != nil {
		log.WarnContext(ctx, "transition recorded without effect", "state", tx.State, "error", err)
		return rcpt, err
	}
	rcpt.Added = added
	return rcpt, nil
}

// CurrentState returns the head of the group's chain.
func (l *Ledger) CurrentState(name string) (string, error) {
	g, err := l.group(name)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.head(), nil
}

// Members returns the roster in join order; the owner is first.
func (l *Ledger) Members(name string) ([]string, error) {
	g, err := l.group(name)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.members), nil
}

// OperationAt returns the operation that produced the earliest occurrence of
// state. The genesis state yields a nil operation.
func (l *Ledger) OperationAt(name, state string) (*Operation, error) {
	g, err := l.group(name)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.Index(g.states, state)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrStateNotFound, state, name)
	}
	if g.ops[i] == nil {
		return nil, nil
	}
	op := *g.ops[i]
	return &op, nil
}

// StateBefore returns the label preceding the earliest non-genesis
// occurrence of state. Genesis has no predecessor.
func (l *Ledger) StateBefore(name, state string) (string, error) {
	g, err := l.group(name)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 1; i < len(g.states); i++ {
		if g.states[i] == state {
			return g.states[i-1], nil
		}
	}
	return "", fmt.Errorf("%w: no predecessor for %q in %s", ErrStateNotFound, state, name)
}

// History returns a copy of the group's chain, genesis first.
func (l *Ledger) History(name string) ([]Entry, error) {
	g, err := l.group(name)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Entry, len(g.states))
	for i, s := range g.states {
		out[i].State = s
		if g.ops[i] != nil {
			op := *g.ops[i]
			out[i].Operation = &op
		}
	}
	return out, nil
}
