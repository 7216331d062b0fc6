package outbox

import (
	"context"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/store"
	"go.uber.org/zap"
)

// Journal is where the recorder writes action outcomes.
type Journal interface {
	RecordAction(a *store.Action) error
}

// Recorder writes every outbound result published on the bus to the journal.
type Recorder struct {
	journal Journal
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRecorder creates a recorder. Start must be called to begin recording.
func NewRecorder(journal Journal, b *bus.Bus, logger *zap.Logger) *Recorder {
	return &Recorder{
		journal: journal,
		bus:     b,
		logger:  logger,
	}
}

// Start subscribes to outbound events.
func (r *Recorder) Start(ctx context.Context) {
	ch, unsub := r.bus.Subscribe(bus.NSOutbound, 256)
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, ch, unsub)
}

// Stop stops recording and waits for the loop to exit. Results still
// buffered are written first.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Recorder) loop(ctx context.Context, ch <-chan bus.Event, unsub func()) {
	defer close(r.done)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			r.record(evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-ch:
					r.record(evt)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(evt bus.Event) {
	res, ok := evt.Payload.(Result)
	if !ok {
		return
	}
	a := &store.Action{
		ID:             res.ID,
		Kind:           string(res.Action),
		ConversationID: res.ConversationID,
		MessageID:      res.MessageID,
		Content:        res.Content,
		Emitted:        res.Emitted,
		Durability:     string(res.Durability),
		Error:          res.ErrorText(),
		CreatedAt:      res.CreatedAt.UnixMilli(),
		UpdatedAt:      res.UpdatedAt.UnixMilli(),
	}
	if err := r.journal.RecordAction(a); err != nil {
		r.logger.Error("failed to journal action", zap.String("action_id", res.ID), zap.Error(err))
	}
}
