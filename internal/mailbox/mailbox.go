// Package mailbox stores offline messages until their recipient fetches them.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/observability"
	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
	"github.com/gezibash/arc-ledger/pkg/logging"
)

var ErrInvalidRecipient = fmt.Errorf("recipient %w", arcerrors.ErrInvalidInput)

const queuePrefix = "inbox/"

// Message is one queued message. Message bodies are opaque to the server.
type Message struct {
	From    string `json:"from"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Mailbox is a set of per-recipient FIFO queues.
type Mailbox struct {
	store   physical.Backend
	metrics *observability.Metrics
	log     *logging.Logger
}

// New creates a Mailbox over store. m and log may be nil.
func New(store physical.Backend, m *observability.Metrics, log *logging.Logger) *Mailbox {
	if log == nil {
		log = logging.New(nil)
	}
	return &Mailbox{store: store, metrics: m, log: log.WithComponent("mailbox")}
}

// Send queues msg for recipient.
func (mb *Mailbox) Send(ctx context.Context, to string, msg Message) (err error) {
	op, ctx := observability.StartOperation(ctx, mb.metrics, "mailbox.send")
	defer func() { op.End(err) }()

	if to == "" {
		return ErrInvalidRecipient
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := mb.store.Append(ctx, queuePrefix+to, data); err != nil {
		return fmt.Errorf("queue message for %s: %w", to, err)
	}
	mb.metrics.ObserveMailbox("in", 1)
	mb.log.DebugContext(ctx, "message queued", "to", to, "from", msg.From, "type", msg.Type)
	return nil
}

// Fetch removes and returns every message queued for username, oldest first.
// It returns an empty slice when there is nothing queued.
func (mb *Mailbox) Fetch(ctx context.Context, username string) (msgs []Message, err error) {
	op, ctx := observability.StartOperation(ctx, mb.metrics, "mailbox.fetch")
	defer func() { op.End(err) }()

	raw, err := mb.store.Drain(ctx, queuePrefix+username)
	if err != nil {
		return nil, fmt.Errorf("drain mailbox of %s: %w", username, err)
	}
	msgs = make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal(r, &m); err != nil {
			// Drained already; a corrupt entry is dropped rather than blocking the rest.
			mb.log.WarnContext(ctx, "dropping undecodable message", "to", username, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	mb.metrics.ObserveMailbox("out", len(msgs))
	return msgs, nil
}
