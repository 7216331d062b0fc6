package model

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/wppsync/internal/api"
)

type fakeSource struct {
	convs map[string]*api.Conversation
	sent  []string
	page  int
}

func (f *fakeSource) Status(context.Context) (*api.Status, error) {
	return &api.Status{Session: "main", State: "READY"}, nil
}

func (f *fakeSource) Contacts(context.Context) (*api.Roster, error) {
	f.page = 1
	return &api.Roster{Page: f.page, HasMore: true}, nil
}

func (f *fakeSource) LoadMoreContacts(context.Context) (*api.Roster, error) {
	f.page++
	return &api.Roster{Page: f.page}, nil
}

func (f *fakeSource) Open(ctx context.Context, contact string) (*api.Conversation, error) {
	return f.Messages(ctx, contact)
}

func (f *fakeSource) Messages(_ context.Context, contact string) (*api.Conversation, error) {
	c, ok := f.convs[contact]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeSource) Resync(ctx context.Context, contact string) (*api.Conversation, error) {
	return f.Messages(ctx, contact)
}

func (f *fakeSource) Send(_ context.Context, contact, text string) (*api.Message, error) {
	f.sent = append(f.sent, contact+":"+text)
	c := f.convs[contact]
	c.Messages = append(c.Messages, api.Message{ID: "local-x", Content: text, Local: true})
	return &c.Messages[len(c.Messages)-1], nil
}

func (f *fakeSource) Edit(_ context.Context, _, id, _ string) (*api.ActionResult, error) {
	return &api.ActionResult{Action: "edit", MessageID: id}, nil
}

func (f *fakeSource) Delete(_ context.Context, _, id string) (*api.ActionResult, error) {
	return &api.ActionResult{Action: "delete", MessageID: id}, nil
}

func (f *fakeSource) Pairing(context.Context) (*api.Pairing, error) {
	return &api.Pairing{QR: "2@ref"}, nil
}

func newFake() *fakeSource {
	return &fakeSource{convs: map[string]*api.Conversation{
		"c1": {Contact: api.Contact{ID: "c1", Name: "Ana"}},
	}}
}

func TestAffects(t *testing.T) {
	vm := NewViewModel(newFake())
	if err := vm.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		evt  api.Event
		want Refresh
	}{
		{api.Event{Kind: "conv.changed", Conversation: "c1"}, RefreshThread},
		{api.Event{Kind: "conv.loaded", Conversation: "c2"}, 0},
		{api.Event{Kind: "roster.changed"}, RefreshRoster},
		{api.Event{Kind: "status.changed"}, RefreshStatus},
		{api.Event{Kind: "pairing.updated"}, RefreshPairing | RefreshStatus},
		{api.Event{Kind: "outbound.result", Conversation: "c1"}, 0},
	}
	for _, tt := range tests {
		if got := vm.Affects(&tt.evt); got != tt.want {
			t.Errorf("Affects(%s %s) = %b, want %b", tt.evt.Kind, tt.evt.Conversation, got, tt.want)
		}
	}
	if !(RefreshPairing | RefreshStatus).Has(RefreshStatus) || RefreshThread.Has(RefreshRoster) {
		t.Error("Refresh.Has mismatch")
	}
}

func TestSendRequiresConversation(t *testing.T) {
	vm := NewViewModel(newFake())
	if err := vm.Send(context.Background(), "hi"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("Send() error = %v, want ErrNoConversation", err)
	}
	if _, err := vm.Delete(context.Background(), "m1"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("Delete() error = %v, want ErrNoConversation", err)
	}
}

func TestOpenSendAndClose(t *testing.T) {
	src := newFake()
	vm := NewViewModel(src)
	ctx := context.Background()

	if err := vm.Open(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if vm.Active() != "c1" {
		t.Fatalf("active = %q, want c1", vm.Active())
	}
	if err := vm.Send(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if len(src.sent) != 1 || src.sent[0] != "c1:hello" {
		t.Errorf("sent = %v", src.sent)
	}
	if conv := vm.Conversation(); conv == nil || len(conv.Messages) != 1 {
		t.Errorf("thread not reloaded after send: %+v", conv)
	}

	res, err := vm.Edit(ctx, "m1", "new")
	if err != nil || res.MessageID != "m1" {
		t.Errorf("Edit() = %+v, %v", res, err)
	}

	vm.Close()
	if vm.Active() != "" || vm.Conversation() != nil {
		t.Error("Close() kept the conversation")
	}
	if err := vm.ReloadThread(ctx); err != nil {
		t.Errorf("ReloadThread() without conversation = %v, want nil", err)
	}
}

func TestRosterPaging(t *testing.T) {
	vm := NewViewModel(newFake())
	ctx := context.Background()
	if err := vm.LoadRoster(ctx); err != nil {
		t.Fatal(err)
	}
	if !vm.Roster().HasMore {
		t.Fatal("expected more pages")
	}
	if err := vm.LoadMoreContacts(ctx); err != nil {
		t.Fatal(err)
	}
	if vm.Roster().Page != 2 {
		t.Errorf("page = %d, want 2", vm.Roster().Page)
	}
}

func TestNeedsPairing(t *testing.T) {
	vm := NewViewModel(newFake())
	if vm.NeedsPairing() {
		t.Error("needs pairing before any load")
	}
	if err := vm.LoadPairing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !vm.NeedsPairing() {
		t.Error("QR present but NeedsPairing() = false")
	}
}
