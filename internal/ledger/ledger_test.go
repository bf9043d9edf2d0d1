package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gezibash/arc-ledger/internal/observability"
	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
	"github.com/gezibash/arc-ledger/pkg/identity"
	"github.com/gezibash/arc-ledger/pkg/identity/ed25519"
)

// fakeDirectory is an in-memory Resolver that records which signers were
// resolved.
type fakeDirectory struct {
	mu       sync.Mutex
	keys     map[string]*ed25519.Keypair
	failWith error
	resolved []string
}

func newFakeDirectory(t *testing.T, users ...string) *fakeDirectory {
	t.Helper()
	d := &fakeDirectory{keys: make(map[string]*ed25519.Keypair)}
	for _, u := range users {
		d.add(t, u)
	}
	return d
}

func (d *fakeDirectory) add(t *testing.T, username string) *ed25519.Keypair {
	t.Helper()
	kp, err := ed25519.Generate()
	if err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	d.keys[username] = kp
	d.mu.Unlock()
	return kp
}

func (d *fakeDirectory) SigningKey(_ context.Context, username string) (identity.PublicKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolved = append(d.resolved, username)
	if d.failWith != nil {
		return identity.PublicKey{}, d.failWith
	}
	kp, ok := d.keys[username]
	if !ok {
		return identity.PublicKey{}, fmt.Errorf("user %w", arcerrors.ErrNotFound)
	}
	return kp.PublicKey(), nil
}

func (d *fakeDirectory) IsRegistered(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[username]
	return ok, nil
}

func (d *fakeDirectory) sign(t *testing.T, username string, tx Transaction) SignedBy {
	t.Helper()
	d.mu.Lock()
	kp := d.keys[username]
	d.mu.Unlock()
	if kp == nil {
		t.Fatalf("no key for %s", username)
	}
	return signWith(t, kp, username, tx)
}

func signWith(t *testing.T, kp *ed25519.Keypair, username string, tx Transaction) SignedBy {
	t.Helper()
	digest, err := ConcatDigest{}.Digest(tx.PrevState, tx.State, tx.Operation)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := kp.Sign(digest)
	if err != nil {
		t.Fatal(err)
	}
	return SignedBy{Username: username, Signature: sig.Bytes}
}

func label(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func proposal(prev, next string, op Operation) Transaction {
	return Transaction{PrevState: label(prev), State: label(next), Operation: op}
}

// checkChain asserts the chain/log length invariant directly on the group.
func checkChain(t *testing.T, l *Ledger, name string) {
	t.Helper()
	g, err := l.group(name)
	if err != nil {
		t.Fatal(err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.states) != len(g.ops) {
		t.Fatalf("chain invariant broken: %d states, %d operations", len(g.states), len(g.ops))
	}
	if g.ops[0] != nil {
		t.Fatal("genesis operation must be the nil sentinel")
	}
}

func chainLen(t *testing.T, l *Ledger, name string) int {
	t.Helper()
	h, err := l.History(name)
	if err != nil {
		t.Fatal(err)
	}
	return len(h)
}

// setup registers group g owned by alice at S0 and invites the given members
// one by one, signing with every current member.
func setup(t *testing.T, dir *fakeDirectory, invitees ...string) *Ledger {
	t.Helper()
	ctx := context.Background()
	l := New(dir)
	if err := l.Register(ctx, "g", "alice", label("S0")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	prev := "S0"
	for i, u := range invitees {
		next := fmt.Sprintf("S%d", i+1)
		tx := proposal(prev, next, InviteOperation("alice", u))
		members, _ := l.Members("g")
		for _, m := range members {
			tx.SignedBy = append(tx.SignedBy, dir.sign(t, m, tx))
		}
		if _, err := l.Submit(ctx, "g", tx); err != nil {
			t.Fatalf("invite %s: %v", u, err)
		}
		prev = next
	}
	return l
}

func TestThreshold(t *testing.T) {
	for n, want := range map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4, 7: 4} {
		if got := Threshold(n); got != want {
			t.Errorf("Threshold(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	l := New(newFakeDirectory(t))

	if err := l.Register(ctx, "g", "alice", label("S0")); err != nil {
		t.Fatal(err)
	}
	members, _ := l.Members("g")
	if !slices.Equal(members, []string{"alice"}) {
		t.Fatalf("members = %v", members)
	}
	state, _ := l.CurrentState("g")
	if state != label("S0") {
		t.Fatalf("state = %q", state)
	}
	checkChain(t, l, "g")

	// Re-registering is ignored; the first registration stands.
	err := l.Register(ctx, "g", "mallory", label("X0"))
	if !errors.Is(err, ErrAlreadyExists) || !errors.Is(err, arcerrors.ErrAlreadyExists) {
		t.Fatalf("duplicate Register err = %v", err)
	}
	members, _ = l.Members("g")
	state, _ = l.CurrentState("g")
	if !slices.Equal(members, []string{"alice"}) || state != label("S0") {
		t.Fatalf("existing group modified: members=%v state=%q", members, state)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	l := New(newFakeDirectory(t))

	tests := []struct {
		name, group, owner, genesis string
		want                        error
	}{
		{"empty name", "", "alice", label("S0"), ErrInvalidGroup},
		{"empty owner", "g", "", label("S0"), ErrInvalidGroup},
		{"non-base64 genesis", "g", "alice", "not base64!", ErrMalformedState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.Register(ctx, tt.group, tt.owner, tt.genesis); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if l.Exists("g") {
		t.Fatal("invalid registration created a group")
	}
}

func TestInviteAccepted(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir)

	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}

	rcpt, err := l.Submit(ctx, "g", tx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Index != 1 || rcpt.State != label("S1") || rcpt.Added != "bob" {
		t.Fatalf("receipt = %+v", rcpt)
	}
	members, _ := l.Members("g")
	if !slices.Equal(members, []string{"alice", "bob"}) {
		t.Fatalf("members = %v", members)
	}
	state, _ := l.CurrentState("g")
	if state != label("S1") {
		t.Fatalf("state = %q", state)
	}
	op, err := l.OperationAt("g", label("S1"))
	if err != nil || *op != InviteOperation("alice", "bob") {
		t.Fatalf("OperationAt = %+v, %v", op, err)
	}
	checkChain(t, l, "g")
}

func TestQuorumNotMet(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob", "carol")
	l := setup(t, dir, "bob")

	// Roster of two needs two signatures.
	tx := proposal("S1", "S2", InviteOperation("bob", "carol"))
	tx.SignedBy = []SignedBy{dir.sign(t, "bob", tx)}

	_, err := l.Submit(ctx, "g", tx)
	if !errors.Is(err, ErrQuorumNotMet) {
		t.Fatalf("err = %v, want ErrQuorumNotMet", err)
	}
	if Reason(err) != "quorum_not_met" {
		t.Errorf("Reason = %q", Reason(err))
	}
	members, _ := l.Members("g")
	state, _ := l.CurrentState("g")
	if !slices.Equal(members, []string{"alice", "bob"}) || state != label("S1") || chainLen(t, l, "g") != 2 {
		t.Fatalf("rejected proposal changed the group: members=%v state=%q", members, state)
	}
	checkChain(t, l, "g")

	tx.SignedBy = append(tx.SignedBy, dir.sign(t, "alice", tx))
	if _, err := l.Submit(ctx, "g", tx); err != nil {
		t.Fatalf("with both signatures: %v", err)
	}
	members, _ = l.Members("g")
	if !slices.Equal(members, []string{"alice", "bob", "carol"}) {
		t.Fatalf("members = %v", members)
	}
}

func TestEmptySignatureList(t *testing.T) {
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir)

	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	if _, err := l.Submit(context.Background(), "g", tx); !errors.Is(err, ErrQuorumNotMet) {
		t.Fatalf("err = %v, want ErrQuorumNotMet", err)
	}
}

func TestStaleProposal(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob", "carol")
	l := setup(t, dir, "bob")

	// S0 has been superseded by S1.
	tx := proposal("S0", "S9", InviteOperation("alice", "carol"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx), dir.sign(t, "bob", tx)}

	_, err := l.Submit(ctx, "g", tx)
	if !errors.Is(err, ErrStaleOrForked) || !errors.Is(err, arcerrors.ErrConflict) {
		t.Fatalf("err = %v, want ErrStaleOrForked", err)
	}
	if chainLen(t, l, "g") != 2 {
		t.Fatal("stale proposal changed history")
	}
}

func TestUnknownInviteeKeepsHistory(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice")
	l := setup(t, dir)

	tx := proposal("S0", "S1", InviteOperation("alice", "dave"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}

	rcpt, err := l.Submit(ctx, "g", tx)
	if !errors.Is(err, ErrUnknownInvitee) || !errors.Is(err, arcerrors.ErrUnprocessable) {
		t.Fatalf("err = %v, want ErrUnknownInvitee", err)
	}
	if rcpt == nil || rcpt.Index != 1 || rcpt.Added != "" {
		t.Fatalf("receipt = %+v, want the appended transition", rcpt)
	}

	// History is append-only: the transition stays even though the roster
	// did not change.
	state, _ := l.CurrentState("g")
	if state != label("S1") || chainLen(t, l, "g") != 2 {
		t.Fatalf("state = %q, history len = %d", state, chainLen(t, l, "g"))
	}
	members, _ := l.Members("g")
	if !slices.Equal(members, []string{"alice"}) {
		t.Fatalf("members = %v", members)
	}
	checkChain(t, l, "g")
}

func TestIdempotentInvite(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir, "bob")

	tx := proposal("S1", "S2", InviteOperation("alice", "bob"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx), dir.sign(t, "bob", tx)}

	rcpt, err := l.Submit(ctx, "g", tx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Added != "" {
		t.Errorf("Added = %q, want none", rcpt.Added)
	}
	members, _ := l.Members("g")
	if !slices.Equal(members, []string{"alice", "bob"}) {
		t.Fatalf("members = %v", members)
	}
	if chainLen(t, l, "g") != 3 {
		t.Fatal("re-invite must still append to history")
	}
	checkChain(t, l, "g")
}

func TestUnrecognizedOperation(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir)

	ops := []Operation{
		{Type: "rename", Data: "new name"},
		{Type: "INVITE", Data: "alice bob"},
		{Type: "", Data: ""},
	}
	prev := "S0"
	for i, op := range ops {
		next := fmt.Sprintf("U%d", i)
		tx := proposal(prev, next, op)
		tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}
		if _, err := l.Submit(ctx, "g", tx); err != nil {
			t.Fatalf("Submit %+v: %v", op, err)
		}
		got, err := l.OperationAt("g", label(next))
		if err != nil || *got != op {
			t.Fatalf("OperationAt = %+v, %v; want unmodified %+v", got, err, op)
		}
		prev = next
	}
	members, _ := l.Members("g")
	if !slices.Equal(members, []string{"alice"}) {
		t.Fatalf("unrecognized operations changed members: %v", members)
	}
	checkChain(t, l, "g")
}

func TestMalformedProposals(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir)

	tests := []struct {
		name string
		tx   Transaction
		want error
	}{
		{
			name: "invite with one token",
			tx:   proposal("S0", "S1", Operation{Type: OpInvite, Data: "bob"}),
			want: ErrMalformedInvite,
		},
		{
			name: "invite with three tokens",
			tx:   proposal("S0", "S1", Operation{Type: OpInvite, Data: "alice bob carol"}),
			want: ErrMalformedInvite,
		},
		{
			name: "state not base64",
			tx:   Transaction{PrevState: label("S0"), State: "%%%", Operation: InviteOperation("alice", "bob")},
			want: ErrMalformedState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tx.SignedBy = []SignedBy{{Username: "alice", Signature: make([]byte, 64)}}
			_, err := l.Submit(ctx, "g", tt.tx)
			if !errors.Is(err, tt.want) || !errors.Is(err, arcerrors.ErrInvalidInput) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if chainLen(t, l, "g") != 1 {
				t.Fatal("malformed proposal changed history")
			}
		})
	}
}

func TestSignatureFailures(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob", "carol", "dave")
	l := setup(t, dir, "bob", "carol")
	// Roster of three; threshold two.

	base := proposal("S2", "S3", InviteOperation("alice", "dave"))
	mallory, err := ed25519.Generate()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("unknown signer", func(t *testing.T) {
		tx := base
		tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx), signWith(t, mallory, "mallory", tx)}
		if _, err := l.Submit(ctx, "g", tx); !errors.Is(err, ErrUnknownSigner) {
			t.Fatalf("err = %v, want ErrUnknownSigner", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		tx := base
		tx.SignedBy = []SignedBy{signWith(t, mallory, "bob", tx), dir.sign(t, "alice", tx), dir.sign(t, "carol", tx)}
		if _, err := l.Submit(ctx, "g", tx); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("one bad signature rejects the proposal", func(t *testing.T) {
		tx := base
		bad := dir.sign(t, "bob", tx)
		bad.Signature[0] ^= 0xff
		tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx), bad, dir.sign(t, "carol", tx)}
		if _, err := l.Submit(ctx, "g", tx); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("truncated signature", func(t *testing.T) {
		tx := base
		tx.SignedBy = []SignedBy{{Username: "alice", Signature: []byte{1, 2, 3}}}
		if _, err := l.Submit(ctx, "g", tx); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("signature over another transition", func(t *testing.T) {
		tx := base
		other := proposal("S2", "S3", InviteOperation("alice", "mallory"))
		tx.SignedBy = []SignedBy{dir.sign(t, "alice", other), dir.sign(t, "bob", other)}
		if _, err := l.Submit(ctx, "g", tx); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("err = %v, want ErrInvalidSignature", err)
		}
	})

	if chainLen(t, l, "g") != 3 {
		t.Fatal("rejected proposals changed history")
	}
	members, _ := l.Members("g")
	if !slices.Equal(members, []string{"alice", "bob", "carol"}) {
		t.Fatalf("members = %v", members)
	}
	checkChain(t, l, "g")
}

func TestQuorumStopsEarly(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir)

	// Threshold one is met by alice; the trailing garbage is never checked.
	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	tx.SignedBy = []SignedBy{
		dir.sign(t, "alice", tx),
		{Username: "nobody", Signature: []byte("junk")},
	}
	dir.resolved = nil
	if _, err := l.Submit(ctx, "g", tx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !slices.Equal(dir.resolved, []string{"alice"}) {
		t.Fatalf("resolved %v, want only alice", dir.resolved)
	}
}

// A member listed twice counts twice toward the threshold. This is a known
// weakness kept for compatibility with existing clients; the test pins the
// current behaviour so a change to it is deliberate.
func TestDuplicateSignerCountsTwice(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob", "carol", "dave")
	l := setup(t, dir, "bob", "carol")

	tx := proposal("S2", "S3", InviteOperation("alice", "dave"))
	sig := dir.sign(t, "alice", tx)
	tx.SignedBy = []SignedBy{sig, sig}

	if _, err := l.Submit(ctx, "g", tx); err != nil {
		t.Fatalf("duplicate signer: %v", err)
	}
	members, _ := l.Members("g")
	if !slices.Contains(members, "dave") {
		t.Fatalf("members = %v", members)
	}
}

func TestResolverFailure(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := setup(t, dir)

	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}

	dir.failWith = errors.New("backend unavailable")
	_, err := l.Submit(ctx, "g", tx)
	if err == nil || errors.Is(err, ErrUnknownSigner) {
		t.Fatalf("err = %v, want a resolver failure", err)
	}
	if Reason(err) != "internal" {
		t.Errorf("Reason = %q, want internal", Reason(err))
	}
	if chainLen(t, l, "g") != 1 {
		t.Fatal("failed lookup changed history")
	}
}

func TestGroupNotFound(t *testing.T) {
	l := New(newFakeDirectory(t))
	ctx := context.Background()

	_, err := l.Submit(ctx, "nope", proposal("S0", "S1", InviteOperation("a", "b")))
	if !errors.Is(err, ErrGroupNotFound) || !errors.Is(err, arcerrors.ErrNotFound) {
		t.Fatalf("Submit err = %v", err)
	}
	if _, err := l.CurrentState("nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("CurrentState err = %v", err)
	}
	if _, err := l.Members("nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("Members err = %v", err)
	}
	if _, err := l.OperationAt("nope", label("S0")); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("OperationAt err = %v", err)
	}
	if _, err := l.StateBefore("nope", label("S0")); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("StateBefore err = %v", err)
	}
	if _, err := l.History("nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("History err = %v", err)
	}
	if l.Exists("nope") {
		t.Error("Exists(nope) = true")
	}
}

func TestHistoryReads(t *testing.T) {
	dir := newFakeDirectory(t, "alice", "bob", "carol")
	l := setup(t, dir, "bob", "carol")

	history, err := l.History("g")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 || history[0].Operation != nil {
		t.Fatalf("history = %+v", history)
	}
	for i := 1; i < len(history); i++ {
		prev, err := l.StateBefore("g", history[i].State)
		if err != nil || prev != history[i-1].State {
			t.Errorf("StateBefore(%q) = %q, %v; want %q", history[i].State, prev, err, history[i-1].State)
		}
		op, err := l.OperationAt("g", history[i].State)
		if err != nil || *op != *history[i].Operation {
			t.Errorf("OperationAt(%q) = %+v, %v", history[i].State, op, err)
		}
	}

	if _, err := l.StateBefore("g", label("S0")); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("StateBefore(genesis) err = %v, want ErrStateNotFound", err)
	}
	if op, err := l.OperationAt("g", label("S0")); err != nil || op != nil {
		t.Errorf("OperationAt(genesis) = %+v, %v; want nil sentinel", op, err)
	}
	if _, err := l.OperationAt("g", label("missing")); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("OperationAt(missing) err = %v", err)
	}
	if _, err := l.StateBefore("g", label("missing")); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("StateBefore(missing) err = %v", err)
	}

	// Returned slices are copies.
	history[0].State = "mutated"
	members, _ := l.Members("g")
	members[0] = "mallory"
	if h, _ := l.History("g"); h[0].State != label("S0") {
		t.Error("History returned shared storage")
	}
	if m, _ := l.Members("g"); m[0] != "alice" {
		t.Error("Members returned shared storage")
	}
}

func TestRepeatedStateLabelsResolveEarliest(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice")
	l := setup(t, dir)

	// S0 -> A -> S0 -> A: labels repeat.
	steps := []struct {
		prev, next string
		op         Operation
	}{
		{"S0", "A", Operation{Type: "note", Data: "first"}},
		{"A", "S0", Operation{Type: "note", Data: "second"}},
		{"S0", "A", Operation{Type: "note", Data: "third"}},
	}
	for _, s := range steps {
		tx := proposal(s.prev, s.next, s.op)
		tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}
		if _, err := l.Submit(ctx, "g", tx); err != nil {
			t.Fatal(err)
		}
	}

	op, err := l.OperationAt("g", label("A"))
	if err != nil || op.Data != "first" {
		t.Fatalf("OperationAt(A) = %+v, %v; want earliest", op, err)
	}
	if op, err := l.OperationAt("g", label("S0")); err != nil || op != nil {
		t.Fatalf("OperationAt(S0) = %+v, %v; want genesis sentinel", op, err)
	}
	prev, err := l.StateBefore("g", label("S0"))
	if err != nil || prev != label("A") {
		t.Fatalf("StateBefore(S0) = %q, %v; want the first non-genesis occurrence", prev, err)
	}
}

func TestConcurrentSubmitIsLinearizable(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice")
	l := setup(t, dir)

	const n = 32
	txs := make([]Transaction, n)
	for i := range txs {
		txs[i] = proposal("S0", fmt.Sprintf("fork-%d", i), Operation{Type: "note", Data: fmt.Sprint(i)})
		txs[i].SignedBy = []SignedBy{dir.sign(t, "alice", txs[i])}
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := range txs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = l.Submit(ctx, "g", txs[i])
		}()
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrStaleOrForked):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d proposals from the same prev_state succeeded, want exactly 1", wins)
	}
	if chainLen(t, l, "g") != 2 {
		t.Fatalf("history length = %d, want 2", chainLen(t, l, "g"))
	}
	checkChain(t, l, "g")
}

func TestGroupsAreIndependent(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := New(dir)

	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}

	var wg sync.WaitGroup
	for i := range 8 {
		name := fmt.Sprintf("g%d", i)
		if err := l.Register(ctx, name, "alice", label("S0")); err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Submit(ctx, name, tx); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}()
	}
	wg.Wait()
	for i := range 8 {
		members, _ := l.Members(fmt.Sprintf("g%d", i))
		if !slices.Equal(members, []string{"alice", "bob"}) {
			t.Errorf("g%d members = %v", i, members)
		}
	}
}

type prefixedDigest struct{}

func (prefixedDigest) Digest(prev, state string, op Operation) ([]byte, error) {
	d, err := ConcatDigest{}.Digest(prev, state, op)
	if err != nil {
		return nil, err
	}
	return append([]byte("v2:"), d...), nil
}

func TestWithDigester(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(t, "alice", "bob")
	l := New(dir, WithDigester(prefixedDigest{}))
	_ = l.Register(ctx, "g", "alice", label("S0"))

	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}
	if _, err := l.Submit(ctx, "g", tx); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("concat signature under v2 digest: err = %v", err)
	}

	digest, _ := prefixedDigest{}.Digest(tx.PrevState, tx.State, tx.Operation)
	dir.mu.Lock()
	kp := dir.keys["alice"]
	dir.mu.Unlock()
	sig, _ := kp.Sign(digest)
	tx.SignedBy = []SignedBy{{Username: "alice", Signature: sig.Bytes}}
	if _, err := l.Submit(ctx, "g", tx); err != nil {
		t.Fatalf("v2 signature: %v", err)
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	m := observability.NewMetrics()
	dir := newFakeDirectory(t, "alice", "bob")
	l := New(dir, WithMetrics(m))
	_ = l.Register(ctx, "g", "alice", label("S0"))

	tx := proposal("S0", "S1", InviteOperation("alice", "bob"))
	_, _ = l.Submit(ctx, "g", tx)
	tx.SignedBy = []SignedBy{dir.sign(t, "alice", tx)}
	_, _ = l.Submit(ctx, "g", tx)
	_, _ = l.Submit(ctx, "g", tx)

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("accepted")); got != 1 {
		t.Errorf("accepted = %v", got)
	}
	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("quorum_not_met")); got != 1 {
		t.Errorf("quorum_not_met = %v", got)
	}
	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("stale_or_forked_proposal")); got != 1 {
		t.Errorf("stale = %v", got)
	}
	if got := testutil.ToFloat64(m.SignaturesVerified.WithLabelValues("valid")); got != 1 {
		t.Errorf("valid signatures = %v", got)
	}
	if got := testutil.ToFloat64(m.Groups); got != 1 {
		t.Errorf("groups = %v", got)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrGroupNotFound, "group_not_found"},
		{fmt.Errorf("%w: g", ErrStaleOrForked), "stale_or_forked_proposal"},
		{ErrUnknownSigner, "unknown_signer"},
		{ErrInvalidSignature, "invalid_signature"},
		{ErrQuorumNotMet, "quorum_not_met"},
		{ErrUnknownInvitee, "unknown_invitee"},
		{ErrAlreadyExists, "already_exists"},
		{ErrMalformedInvite, "malformed_invite"},
		{ErrMalformedState, "malformed_state"},
		{ErrStateNotFound, "state_not_found"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
