package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/convstore"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type emitted struct {
	event   string
	payload any
}

type fakeChannel struct {
	connected bool
	err       error
	frames    []emitted
}

func (f *fakeChannel) Connected() bool { return f.connected }

func (f *fakeChannel) Emit(event string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, emitted{event, payload})
	return nil
}

type fakeDurability struct {
	mu      sync.Mutex
	err     error
	updates map[string]string
	deletes []string
}

func (f *fakeDurability) UpdateMessage(_ context.Context, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[id] = content
	return nil
}

func (f *fakeDurability) DeleteMessage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, id)
	return nil
}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) Report(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) all() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

func newPipeline(ch *fakeChannel, d *fakeDurability) (*Pipeline, *collector) {
	c := &collector{}
	var dur Durability
	if d != nil {
		dur = d
	}
	return NewPipeline(ch, dur, c, time.Second, zap.NewNop()), c
}

func confirmed(conv *convstore.Conversation, id, content string, at int64) {
	conv.InsertConfirmed(model.Message{
		ID: id, ConversationID: conv.ContactID, Content: content,
		SenderID: model.LocalSender, CreatedAt: time.Unix(at, 0), Status: model.Delivered,
	})
}

func TestSendConnected(t *testing.T) {
	ch := &fakeChannel{connected: true}
	p, c := newPipeline(ch, nil)
	conv := convstore.New("x")

	msg, err := p.Send(conv, "5511999998888", "hello")
	require.NoError(t, err)
	assert.True(t, model.IsProvisional(msg.ID))
	assert.Equal(t, model.Delivered, msg.Status)
	assert.Equal(t, model.LocalSender, msg.SenderID)

	got, ok := conv.Get(msg.ID)
	require.True(t, ok)
	assert.Equal(t, model.Delivered, got.Status)

	require.Len(t, ch.frames, 1)
	assert.Equal(t, gateway.EventSendMessage, ch.frames[0].event)
	assert.Equal(t, gateway.SendCommand{To: "5511999998888", Content: "hello"}, ch.frames[0].payload)

	res := c.all()
	require.Len(t, res, 1)
	assert.Equal(t, ActionSend, res[0].Action)
	assert.True(t, res[0].Emitted)
	assert.Equal(t, DurabilitySkipped, res[0].Durability)
	assert.True(t, res[0].Final())
}

func TestSendWhileDisconnectedStaysLocal(t *testing.T) {
	ch := &fakeChannel{connected: false}
	p, c := newPipeline(ch, nil)
	conv := convstore.New("x")

	msg, err := p.Send(conv, "x", "hello")
	require.NoError(t, err)
	assert.Equal(t, model.Pending, msg.Status)
	assert.Equal(t, 1, conv.Len())
	assert.Empty(t, ch.frames)

	res := c.all()
	require.Len(t, res, 1)
	assert.False(t, res[0].Emitted)
	assert.NoError(t, res[0].Err)
}

func TestSendEmitFailureDowngradesToPending(t *testing.T) {
	ch := &fakeChannel{connected: true, err: gateway.ErrQueueFull}
	p, c := newPipeline(ch, nil)
	conv := convstore.New("x")

	msg, err := p.Send(conv, "x", "hello")
	require.NoError(t, err)
	assert.Equal(t, model.Pending, msg.Status)
	got, _ := conv.Get(msg.ID)
	assert.Equal(t, model.Pending, got.Status)
	assert.ErrorIs(t, c.all()[0].Err, gateway.ErrQueueFull)
}

func TestSendEmpty(t *testing.T) {
	p, _ := newPipeline(&fakeChannel{connected: true}, nil)
	_, err := p.Send(convstore.New("x"), "x", "")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestEditAppliesAndPersists(t *testing.T) {
	ch := &fakeChannel{connected: true}
	d := &fakeDurability{}
	p, c := newPipeline(ch, d)
	conv := convstore.New("x")
	confirmed(conv, "srv1", "hello", 10)

	res, err := p.Edit(conv, "5511", "srv1", "hello there")
	require.NoError(t, err)
	assert.True(t, res.Emitted)

	got, _ := conv.Get("srv1")
	assert.Equal(t, "hello there", got.Content)
	assert.Equal(t, gateway.EditCommand{MessageID: "srv1", To: "5511", NewContent: "hello there"}, ch.frames[0].payload)

	p.Wait()
	assert.Equal(t, map[string]string{"srv1": "hello there"}, d.updates)

	all := c.all()
	require.Len(t, all, 2)
	assert.Equal(t, DurabilityPending, all[0].Durability)
	assert.Equal(t, DurabilityOK, all[1].Durability)
	assert.Equal(t, all[0].ID, all[1].ID)
}

func TestDurabilityFailureDoesNotRollBack(t *testing.T) {
	ch := &fakeChannel{connected: true}
	d := &fakeDurability{err: errors.New("gateway returned 500")}
	p, c := newPipeline(ch, d)
	conv := convstore.New("x")
	confirmed(conv, "srv1", "hello", 10)
	confirmed(conv, "srv2", "bye", 20)

	_, err := p.Edit(conv, "x", "srv1", "changed")
	require.NoError(t, err)
	_, err = p.Delete(conv, "x", "srv2")
	require.NoError(t, err)
	p.Wait()

	got, _ := conv.Get("srv1")
	assert.Equal(t, "changed", got.Content)
	assert.False(t, conv.Has("srv2"))

	var failed int
	for _, r := range c.all() {
		if r.Durability == DurabilityFailed {
			failed++
			assert.Error(t, r.Err)
		}
	}
	assert.Equal(t, 2, failed)
}

func TestEditAndDeleteWhileDisconnected(t *testing.T) {
	ch := &fakeChannel{connected: false}
	d := &fakeDurability{}
	p, _ := newPipeline(ch, d)
	conv := convstore.New("x")
	confirmed(conv, "srv1", "hello", 10)

	res, err := p.Edit(conv, "x", "srv1", "edited offline")
	require.NoError(t, err)
	assert.False(t, res.Emitted)
	res, err = p.Delete(conv, "x", "srv1")
	require.NoError(t, err)
	assert.False(t, res.Emitted)
	p.Wait()

	assert.Empty(t, ch.frames)
	assert.Equal(t, 0, conv.Len())
	assert.Equal(t, []string{"srv1"}, d.deletes)
}

func TestProvisionalEditAndDeleteStayLocal(t *testing.T) {
	ch := &fakeChannel{connected: true}
	d := &fakeDurability{}
	p, c := newPipeline(ch, d)
	conv := convstore.New("x")
	first, err := p.Send(conv, "x", "hello")
	require.NoError(t, err)
	second, err := p.Send(conv, "x", "bye")
	require.NoError(t, err)

	res, err := p.Edit(conv, "x", first.ID, "hello again")
	require.NoError(t, err)
	assert.False(t, res.Emitted)
	assert.Equal(t, DurabilitySkipped, res.Durability)
	assert.ErrorIs(t, res.Err, ErrProvisional)
	got, ok := conv.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, "hello again", got.Content)

	res, err = p.Delete(conv, "x", second.ID)
	require.NoError(t, err)
	assert.False(t, res.Emitted)
	assert.ErrorIs(t, res.Err, ErrProvisional)
	assert.False(t, conv.Has(second.ID))
	p.Wait()

	// Only the two sends reached the peer.
	assert.Len(t, ch.frames, 2)
	assert.Empty(t, d.updates)
	assert.Empty(t, d.deletes)

	var kept []Result
	for _, r := range c.all() {
		if r.Action != ActionSend {
			kept = append(kept, r)
		}
	}
	require.Len(t, kept, 2)
	assert.True(t, kept[0].Final())
	assert.True(t, kept[1].Final())
}

func TestEditUnknownMessage(t *testing.T) {
	p, _ := newPipeline(&fakeChannel{connected: true}, &fakeDurability{})
	_, err := p.Edit(convstore.New("x"), "x", "missing", "a")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = p.Delete(convstore.New("x"), "x", "missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestSendEchoEditScenario(t *testing.T) {
	ch := &fakeChannel{connected: true}
	p, _ := newPipeline(ch, &fakeDurability{})
	conv := convstore.New("x")

	msg, err := p.Send(conv, "x", "hello")
	require.NoError(t, err)
	require.Equal(t, 1, conv.Len())

	at := time.Unix(100, 0)
	out := conv.InsertConfirmed(model.Message{ID: "srv1", SenderID: model.LocalSender, Content: "hello", CreatedAt: at, Status: model.Delivered})
	assert.Equal(t, convstore.Promoted, out)
	assert.False(t, conv.Has(msg.ID))

	_, err = p.Edit(conv, "x", "srv1", "hello there")
	require.NoError(t, err)
	p.Wait()

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv1", msgs[0].ID)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, model.Delivered, msgs[0].Status)
}
