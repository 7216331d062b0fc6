package model

import (
	"strings"
	"testing"
)

func TestNewProvisionalID(t *testing.T) {
	a := NewProvisionalID()
	b := NewProvisionalID()
	if a == b {
		t.Fatalf("provisional ids collide: %q", a)
	}
	if !strings.HasPrefix(a, ProvisionalPrefix) {
		t.Errorf("id %q missing prefix %q", a, ProvisionalPrefix)
	}
	if !IsProvisional(a) {
		t.Errorf("IsProvisional(%q) = false", a)
	}
	if IsProvisional("srv1") {
		t.Error("IsProvisional(srv1) = true")
	}
}

func TestMessagePredicates(t *testing.T) {
	m := Message{ID: "local-x", SenderID: LocalSender}
	if !m.Provisional() || !m.FromLocal() || m.IsMedia() {
		t.Errorf("unexpected predicates for %+v", m)
	}
	m = Message{ID: "srv2", SenderID: "c1", MediaRef: "/media/a.ogg", IsAudio: true}
	if m.Provisional() || m.FromLocal() || !m.IsMedia() {
		t.Errorf("unexpected predicates for %+v", m)
	}
}

func TestContactLabel(t *testing.T) {
	tests := []struct {
		c    Contact
		want string
	}{
		{Contact{ID: "1", DisplayName: "Ana", Number: "5511"}, "Ana"},
		{Contact{ID: "1", Number: "5511"}, "5511"},
		{Contact{ID: "1"}, "1"},
	}
	for _, tt := range tests {
		if got := tt.c.Label(); got != tt.want {
			t.Errorf("Label(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}
