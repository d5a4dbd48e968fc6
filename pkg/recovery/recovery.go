// Package recovery reattaches the client to a response the server kept
// generating while the connection was down.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/neomind/console/pkg/api"
	"github.com/neomind/console/pkg/stream"
)

// ErrRecoveryPending rejects outbound sends while a recovery offer is
// waiting for the user's decision.
var ErrRecoveryPending = errors.New("recovery: pending stream offer unresolved")

// PendingAPI is the slice of the REST client the coordinator needs.
type PendingAPI interface {
	GetPendingStream(ctx context.Context, sessionID string) (*api.PendingStream, error)
	ClearPendingStream(ctx context.Context, sessionID string) error
}

// Offer describes a server-side stream that survived a disconnect. The
// user decides between Restore and Discard; until then sends are gated.
type Offer struct {
	SessionID   string
	UserMessage string
	Content     string
	Thinking    string
	Stage       string
	Elapsed     int64
}

// Coordinator queries the server for a pending stream after every
// reconnect and hands the decision to the caller. A failed query is
// treated as "nothing pending": recovery is best effort and must never
// wedge a freshly restored connection.
type Coordinator struct {
	client  PendingAPI
	acc     *stream.Accumulator
	session func() string
	onOffer func(Offer)
	log     *slog.Logger

	mu    sync.Mutex
	offer *Offer
}

type Option func(*Coordinator)

// WithOfferFunc registers the callback that surfaces an offer to the UI.
func WithOfferFunc(fn func(Offer)) Option {
	return func(c *Coordinator) { c.onOffer = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// New builds a coordinator. session reports the currently bound session
// id; an empty id means no session is active and checks are skipped.
func New(client PendingAPI, acc *stream.Accumulator, session func() string, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:  client,
		acc:     acc,
		session: session,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending reports whether an offer is waiting for a decision.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offer != nil
}

// GuardSend is consulted before every outbound chat message.
func (c *Coordinator) GuardSend() error {
	if c.Pending() {
		return ErrRecoveryPending
	}
	return nil
}

// CheckPending runs after the reconnected signal. It is not called on
// the initial connect: a fresh session cannot have lost a stream.
func (c *Coordinator) CheckPending(ctx context.Context) {
	id := c.session()
	if id == "" || c.Pending() {
		return
	}

	pending, err := c.client.GetPendingStream(ctx, id)
	if err != nil {
		c.log.Warn("Pending stream query failed, assuming none", "session_id", id, "error", err)
		return
	}
	if !pending.HasPending {
		return
	}

	offer := Offer{
		SessionID:   id,
		UserMessage: pending.UserMessage,
		Content:     pending.Content,
		Thinking:    pending.Thinking,
		Stage:       pending.Stage,
		Elapsed:     pending.Elapsed,
	}
	c.mu.Lock()
	c.offer = &offer
	c.mu.Unlock()
	c.log.Info("Pending stream found", "session_id", id, "stage", pending.Stage, "elapsed", pending.Elapsed)

	if c.onOffer != nil {
		c.onOffer(offer)
	}
}

// Restore resumes the interrupted stream locally: the text generated so
// far is injected into the accumulator so frames still arriving for the
// turn append to it instead of starting a fresh message.
func (c *Coordinator) Restore() {
	c.mu.Lock()
	offer := c.offer
	c.offer = nil
	c.mu.Unlock()
	if offer == nil {
		return
	}
	c.acc.Restore(offer.Content, offer.Thinking)
}

// Discard drops the server-side stream and clears the offer. The offer
// is released even when the server call fails; the user already chose.
func (c *Coordinator) Discard(ctx context.Context) error {
	c.mu.Lock()
	offer := c.offer
	c.offer = nil
	c.mu.Unlock()
	if offer == nil {
		return nil
	}
	id := offer.SessionID
	c.acc.Reset()

	if err := c.client.ClearPendingStream(ctx, id); err != nil {
		c.log.Warn("Failed to clear pending stream", "session_id", id, "error", err)
		return err
	}
	return nil
}
