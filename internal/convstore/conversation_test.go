package convstore

import (
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func confirmed(id, sender, content string, sec int) model.Message {
	status := model.Seen
	if sender == model.LocalSender {
		status = model.Delivered
	}
	return model.Message{ID: id, SenderID: sender, Content: content, CreatedAt: at(sec), Status: status}
}

func provisional(content string, sec int) model.Message {
	return model.Message{
		ID:        model.NewProvisionalID(),
		SenderID:  model.LocalSender,
		Content:   content,
		CreatedAt: at(sec),
		Status:    model.Delivered,
	}
}

func ids(c *Conversation) []string {
	var out []string
	for _, m := range c.Messages() {
		out = append(out, m.ID)
	}
	return out
}

func TestInsertConfirmedIsIdempotent(t *testing.T) {
	c := New("c1")
	m := confirmed("srv1", "c1", "hi", 1)

	assert.Equal(t, Inserted, c.InsertConfirmed(m))
	assert.Equal(t, Duplicate, c.InsertConfirmed(m))

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "c1", c.Messages()[0].ConversationID)
}

func TestOptimisticCollapse(t *testing.T) {
	c := New("c1")
	p := provisional("hi", 1)
	require.NoError(t, c.InsertProvisional(p))

	out := c.InsertConfirmed(confirmed("srv9", model.LocalSender, "hi", 2))

	assert.Equal(t, Promoted, out)
	require.Equal(t, 1, c.Len())
	got := c.Messages()[0]
	assert.Equal(t, "srv9", got.ID)
	assert.Equal(t, at(2), got.CreatedAt)
	assert.Equal(t, model.Delivered, got.Status)
	assert.False(t, c.Has(p.ID))
}

func TestCollapseKeepsPosition(t *testing.T) {
	c := New("c1")
	require.NoError(t, c.InsertProvisional(provisional("first", 1)))
	c.InsertConfirmed(confirmed("srvA", "c1", "reply", 2))

	c.InsertConfirmed(confirmed("srvB", model.LocalSender, "first", 3))

	assert.Equal(t, []string{"srvB", "srvA"}, ids(c))
}

func TestOldestProvisionalWins(t *testing.T) {
	c := New("c1")
	older := provisional("ok", 1)
	newer := provisional("ok", 2)
	require.NoError(t, c.InsertProvisional(older))
	require.NoError(t, c.InsertProvisional(newer))

	c.InsertConfirmed(confirmed("srv1", model.LocalSender, "ok", 5))

	assert.False(t, c.Has(older.ID))
	assert.True(t, c.Has(newer.ID))
	assert.Equal(t, []string{"srv1", newer.ID}, ids(c))

	c.InsertConfirmed(confirmed("srv2", model.LocalSender, "ok", 6))
	assert.Equal(t, []string{"srv1", "srv2"}, ids(c))
	assert.Empty(t, c.Provisional())
}

func TestRemoteMessageNeverCollapsesProvisional(t *testing.T) {
	c := New("c1")
	p := provisional("hi", 1)
	require.NoError(t, c.InsertProvisional(p))

	assert.Equal(t, Inserted, c.InsertConfirmed(confirmed("srv1", "c1", "hi", 2)))
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Has(p.ID))
}

func TestOrderCorrection(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("t1", "c1", "a", 1))
	c.InsertConfirmed(confirmed("t3", "c1", "c", 3))
	c.InsertConfirmed(confirmed("t2", "c1", "b", 2))

	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(c))
}

func TestEqualTimestampsKeepInsertionOrder(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("a", "c1", "x", 1))
	c.InsertConfirmed(confirmed("b", "c1", "y", 1))
	c.InsertConfirmed(confirmed("c", "c1", "z", 1))

	assert.Equal(t, []string{"a", "b", "c"}, ids(c))
}

func TestApplyEditUnknownIsNoop(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("srv1", "c1", "hello", 1))
	before := c.Messages()

	assert.False(t, c.ApplyEdit("missing-id", "changed", at(9)))
	assert.Equal(t, before, c.Messages())
}

func TestApplyEdit(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("srv1", "c1", "hello", 1))
	c.InsertConfirmed(confirmed("srv2", "c1", "later", 2))

	require.True(t, c.ApplyEdit("srv1", "hello there", at(5)))

	m, ok := c.Get("srv1")
	require.True(t, ok)
	assert.Equal(t, "hello there", m.Content)
	assert.Equal(t, at(5), m.CreatedAt)
	assert.Equal(t, []string{"srv1", "srv2"}, ids(c))
}

func TestApplyDeleteIsIdempotent(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("srv1", "c1", "a", 1))
	c.InsertConfirmed(confirmed("srv2", "c1", "b", 2))

	assert.True(t, c.ApplyDelete("srv1"))
	assert.False(t, c.ApplyDelete("srv1"))
	assert.Equal(t, []string{"srv2"}, ids(c))
}

func TestInsertProvisionalRejectsPeerID(t *testing.T) {
	c := New("c1")
	err := c.InsertProvisional(confirmed("srv1", model.LocalSender, "a", 1))
	assert.ErrorIs(t, err, ErrNotProvisional)
	assert.Zero(t, c.Len())
}

func TestBackfill(t *testing.T) {
	c := New("c1")
	assert.False(t, c.Loaded())

	c.InsertConfirmed(confirmed("live", "c1", "live", 10))
	p := provisional("pending", 11)
	require.NoError(t, c.InsertProvisional(p))

	added := c.Backfill([]model.Message{
		confirmed("h2", "c1", "two", 2),
		confirmed("live", "c1", "live", 10),
		confirmed("h1", "c1", "one", 1),
		// Same text as the provisional entry, but from long before it.
		confirmed("hp", model.LocalSender, "pending", -300),
	})

	assert.Equal(t, 3, added)
	assert.True(t, c.Loaded())
	assert.Equal(t, []string{"hp", "h1", "h2", "live", p.ID}, ids(c))
}

func TestBackfillCollapsesProvisional(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("old", "c1", "hey", 1))
	p := provisional("hi", 10)
	require.NoError(t, c.InsertProvisional(p))

	added := c.Backfill([]model.Message{
		confirmed("old", "c1", "hey", 1),
		confirmed("srv1", model.LocalSender, "hi", 9),
	})
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"old", "srv1"}, ids(c))

	// The live echo arriving afterwards is the same message.
	assert.Equal(t, Duplicate, c.InsertConfirmed(confirmed("srv1", model.LocalSender, "hi", 9)))
	require.Equal(t, 2, c.Len())
	got, ok := c.Get("srv1")
	require.True(t, ok)
	assert.Equal(t, model.Delivered, got.Status)
	assert.Empty(t, c.Provisional())
}

func TestMarkLoadedKeepsMessages(t *testing.T) {
	c := New("c1")
	c.InsertConfirmed(confirmed("srv1", "c1", "a", 1))
	c.MarkLoaded()

	assert.True(t, c.Loaded())
	assert.Equal(t, 1, c.Len())
}

func TestSetStatus(t *testing.T) {
	c := New("c1")
	p := provisional("a", 1)
	require.NoError(t, c.InsertProvisional(p))

	assert.True(t, c.SetStatus(p.ID, model.Pending))
	assert.False(t, c.SetStatus("nope", model.Pending))
	m, _ := c.Get(p.ID)
	assert.Equal(t, model.Pending, m.Status)
}

// TestSendEchoEditScenario walks a message from optimistic send through the
// peer echo to a remote edit.
func TestSendEchoEditScenario(t *testing.T) {
	c := New("x")
	p := provisional("hello", 1)
	require.NoError(t, c.InsertProvisional(p))
	require.Equal(t, 1, c.Len())
	assert.True(t, c.Messages()[0].Provisional())

	assert.Equal(t, Promoted, c.InsertConfirmed(confirmed("srv1", model.LocalSender, "hello", 2)))
	require.Equal(t, []string{"srv1"}, ids(c))
	assert.Equal(t, model.Delivered, c.Messages()[0].Status)

	require.True(t, c.ApplyEdit("srv1", "hello there", at(3)))
	assert.Equal(t, "hello there", c.Messages()[0].Content)
}
