package roster

import (
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func order(x *Index) []string {
	var out []string
	for _, c := range x.Contacts() {
		out = append(out, c.ID)
	}
	return out
}

func TestRecencyOrder(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "A"}, {ID: "B"}, {ID: "C"}})

	require.True(t, x.Touch("A", ts(100)))
	require.True(t, x.Touch("C", ts(200)))

	assert.Equal(t, []string{"C", "A", "B"}, order(x))
}

func TestUntouchedKeepFetchOrder(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}})

	x.Touch("3", ts(50))

	assert.Equal(t, []string{"3", "1", "2", "4"}, order(x))
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "A"}, {ID: "B"}})
	x.Touch("A", ts(300))
	x.Touch("B", ts(200))

	x.Touch("A", ts(100))

	assert.Equal(t, []string{"A", "B"}, order(x))
	c, ok := x.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, ts(300), *c.LastMessageAt)
}

func TestTouchBeforeSeed(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "A"}})
	x.Touch("A", ts(100))

	assert.False(t, x.Touch("Z", ts(500)))
	assert.Equal(t, 1, x.Len())

	x.Seed([]model.Contact{{ID: "Y"}, {ID: "Z"}})
	assert.Equal(t, []string{"Z", "A", "Y"}, order(x))
}

func TestTouchByAddressBeforeSeed(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "A"}})
	x.Touch("A", ts(100))

	assert.False(t, x.Touch("551100000001@c.us", ts(500)))
	assert.False(t, x.Touch("551100000001:3@s.whatsapp.net", ts(300)))

	x.Seed([]model.Contact{{ID: "c-ana", Number: "551100000001"}})
	assert.Equal(t, []string{"c-ana", "A"}, order(x))

	ana, ok := x.Lookup("c-ana")
	require.True(t, ok)
	require.NotNil(t, ana.LastMessageAt)
	assert.Equal(t, ts(500), *ana.LastMessageAt)

	// Consumed: a later page does not apply it again.
	x.Seed([]model.Contact{{ID: "c-other", Number: "551100000001"}})
	other, ok := x.Lookup("c-other")
	require.True(t, ok)
	assert.Nil(t, other.LastMessageAt)
}

func TestSeedRefreshesKnownContacts(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "A", DisplayName: "Old"}, {ID: "B"}})
	x.Touch("A", ts(10))

	x.Seed([]model.Contact{{ID: "A", DisplayName: "New", Number: "5511"}})

	require.Equal(t, 2, x.Len())
	c, ok := x.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "New", c.DisplayName)
	assert.NotNil(t, c.LastMessageAt)
}

func TestLookupByAddress(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "c-1", Number: "+55 (11) 99999-8888"}})

	tests := []struct {
		key  string
		want bool
	}{
		{"c-1", true},
		{"5511999998888", true},
		{"5511999998888@c.us", true},
		{"5511000000000", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c, ok := x.Lookup(tt.key)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, "c-1", c.ID)
			}
		})
	}
}

func TestContactsReturnsCopy(t *testing.T) {
	x := New()
	x.Seed([]model.Contact{{ID: "A"}})
	cs := x.Contacts()
	cs[0].ID = "mutated"

	assert.Equal(t, []string{"A"}, order(x))
}
