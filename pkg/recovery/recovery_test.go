package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomind/console/pkg/api"
	"github.com/neomind/console/pkg/frames"
	"github.com/neomind/console/pkg/session"
	"github.com/neomind/console/pkg/stream"
)

type fakeAPI struct {
	pending  *api.PendingStream
	queryErr error
	clearErr error

	queries int
	cleared []string
}

func (f *fakeAPI) GetPendingStream(_ context.Context, _ string) (*api.PendingStream, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.pending, nil
}

func (f *fakeAPI) ClearPendingStream(_ context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return f.clearErr
}

func newCoordinator(t *testing.T, client *fakeAPI, opts ...Option) (*Coordinator, *stream.Accumulator, *session.Store) {
	t.Helper()
	store := session.NewStore()
	store.BindSession("sess-1")
	acc := stream.New(store)
	c := New(client, acc, store.SessionID, opts...)
	return c, acc, store
}

func TestCoordinator_NoPendingIsNoOp(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{pending: &api.PendingStream{HasPending: false}}
	c, _, _ := newCoordinator(t, client)

	c.CheckPending(context.Background())

	assert.Equal(t, 1, client.queries)
	assert.False(t, c.Pending())
	assert.NoError(t, c.GuardSend())
}

func TestCoordinator_QueryFailureAssumesNoPending(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{queryErr: errors.New("boom")}
	c, _, _ := newCoordinator(t, client)

	c.CheckPending(context.Background())

	assert.False(t, c.Pending())
	assert.NoError(t, c.GuardSend())
}

func TestCoordinator_OfferGatesSends(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{pending: &api.PendingStream{
		HasPending:  true,
		UserMessage: "what is the weather?",
		Content:     "Let me check",
		Stage:       "responding",
		Elapsed:     12,
	}}

	var got Offer
	c, _, _ := newCoordinator(t, client, WithOfferFunc(func(o Offer) { got = o }))

	c.CheckPending(context.Background())

	require.True(t, c.Pending())
	assert.ErrorIs(t, c.GuardSend(), ErrRecoveryPending)
	assert.Equal(t, "what is the weather?", got.UserMessage)
	assert.Equal(t, "Let me check", got.Content)
	assert.Equal(t, "sess-1", got.SessionID)
}

func TestCoordinator_SkipsWithoutSession(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{pending: &api.PendingStream{HasPending: true}}
	store := session.NewStore()
	acc := stream.New(store)
	c := New(client, acc, store.SessionID)

	c.CheckPending(context.Background())

	assert.Zero(t, client.queries)
	assert.False(t, c.Pending())
}

func TestCoordinator_RestoreResumesStream(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{pending: &api.PendingStream{
		HasPending: true,
		Content:    "Hel",
		Thinking:   "checking",
	}}
	c, acc, store := newCoordinator(t, client)

	c.CheckPending(context.Background())
	require.True(t, c.Pending())

	c.Restore()
	assert.False(t, c.Pending())
	assert.NoError(t, c.GuardSend())

	// Frames still arriving for the interrupted turn continue the text.
	acc.Apply(frames.Content("sess-1", "lo."))
	acc.Apply(frames.End("sess-1"))

	messages := store.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello.", messages[0].Content)
	assert.Equal(t, "checking", messages[0].Thinking)
	assert.Empty(t, client.cleared, "restore must not clear the server-side stream")
}

func TestCoordinator_DiscardClearsServerAndLocal(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{pending: &api.PendingStream{HasPending: true, Content: "partial"}}
	c, acc, store := newCoordinator(t, client)

	c.CheckPending(context.Background())
	require.True(t, c.Pending())

	require.NoError(t, c.Discard(context.Background()))
	assert.Equal(t, []string{"sess-1"}, client.cleared)
	assert.False(t, c.Pending())

	_, streaming := acc.Streaming()
	assert.False(t, streaming)
	assert.Empty(t, store.Messages())
}

func TestCoordinator_DiscardReleasesOfferOnServerError(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{
		pending:  &api.PendingStream{HasPending: true},
		clearErr: errors.New("gone"),
	}
	c, _, _ := newCoordinator(t, client)

	c.CheckPending(context.Background())
	require.True(t, c.Pending())

	assert.Error(t, c.Discard(context.Background()))
	assert.False(t, c.Pending())
	assert.NoError(t, c.GuardSend())
}

func TestCoordinator_SecondCheckWhileOfferOpenIsSkipped(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{pending: &api.PendingStream{HasPending: true}}
	c, _, _ := newCoordinator(t, client)

	c.CheckPending(context.Background())
	c.CheckPending(context.Background())

	assert.Equal(t, 1, client.queries)
}

func TestCoordinator_RestoreWithoutOfferIsNoOp(t *testing.T) {
	t.Parallel()

	client := &fakeAPI{}
	c, acc, _ := newCoordinator(t, client)

	c.Restore()
	require.NoError(t, c.Discard(context.Background()))

	_, streaming := acc.Streaming()
	assert.False(t, streaming)
}
