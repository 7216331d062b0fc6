package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppsync/internal/convstore"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrProvisional is the Result error of edits and deletes of a message
	// the peer has not confirmed yet. They apply locally but are never sent:
	// the peer cannot address an id it never issued.
	ErrProvisional = errors.New("message not confirmed by the peer yet")
	// ErrUnknownMessage is returned when the target id is not in the conversation.
	ErrUnknownMessage = errors.New("message not found in conversation")
	// ErrEmptyContent is returned for sends and edits without text.
	ErrEmptyContent = errors.New("message content is empty")
)

// Channel is the persistent link used to emit actions.
type Channel interface {
	Connected() bool
	Emit(event string, payload any) error
}

// Durability persists edits and deletes out of band.
type Durability interface {
	UpdateMessage(ctx context.Context, id, content string) error
	DeleteMessage(ctx context.Context, id string) error
}

// Reporter receives every action outcome. Report may be called from any
// goroutine.
type Reporter interface {
	Report(Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Result)

// Report implements Reporter.
func (f ReporterFunc) Report(r Result) { f(r) }

// Pipeline applies user actions to a conversation at once and forwards them
// to the peer on a best-effort basis. Local state is never rolled back.
//
// Send, Edit and Delete must be called from the goroutine that owns the
// conversation; only durability calls run elsewhere.
type Pipeline struct {
	channel    Channel
	durability Durability
	reporter   Reporter
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// NewPipeline creates a pipeline. timeout bounds each durability call.
func NewPipeline(ch Channel, d Durability, r Reporter, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{
		channel:    ch,
		durability: d,
		reporter:   r,
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// Send inserts a provisional message and emits it. The message is Delivered
// when the channel accepted it and Pending otherwise.
func (p *Pipeline) Send(conv *convstore.Conversation, to, content string) (model.Message, error) {
	if content == "" {
		return model.Message{}, ErrEmptyContent
	}
	status := model.Pending
	if p.channel.Connected() {
		status = model.Delivered
	}
	msg := model.Message{
		ID:             model.NewProvisionalID(),
		ConversationID: conv.ContactID,
		Content:        content,
		SenderID:       model.LocalSender,
		CreatedAt:      p.now(),
		Status:         status,
	}
	if err := conv.InsertProvisional(msg); err != nil {
		return model.Message{}, err
	}

	res := p.newResult(ActionSend, conv.ContactID, msg.ID, content)
	res.Durability = DurabilitySkipped
	res.Emitted, res.Err = p.emit(gateway.EventSendMessage, gateway.SendCommand{To: to, Content: content})
	if !res.Emitted && msg.Status != model.Pending {
		conv.SetStatus(msg.ID, model.Pending)
		msg.Status = model.Pending
	}
	p.report(res)
	return msg, nil
}

// Edit replaces a message's content locally, emits the edit and persists it
// in the background. A provisional message is only edited locally.
func (p *Pipeline) Edit(conv *convstore.Conversation, to, id, content string) (Result, error) {
	if content == "" {
		return Result{}, ErrEmptyContent
	}
	if !conv.Has(id) {
		return Result{}, fmt.Errorf("%s: %w", id, ErrUnknownMessage)
	}
	conv.ApplyEdit(id, content, p.now())

	res := p.newResult(ActionEdit, conv.ContactID, id, content)
	if model.IsProvisional(id) {
		return p.keepLocal(res), nil
	}
	res.Emitted, res.Err = p.emit(gateway.EventEditMessage, gateway.EditCommand{MessageID: id, To: to, NewContent: content})
	p.persist(res, func(ctx context.Context) error {
		return p.durability.UpdateMessage(ctx, id, content)
	})
	return res, nil
}

// Delete removes a message locally, emits the delete and persists it in the
// background. A provisional message is only removed locally.
func (p *Pipeline) Delete(conv *convstore.Conversation, to, id string) (Result, error) {
	if !conv.Has(id) {
		return Result{}, fmt.Errorf("%s: %w", id, ErrUnknownMessage)
	}
	conv.ApplyDelete(id)

	res := p.newResult(ActionDelete, conv.ContactID, id, "")
	if model.IsProvisional(id) {
		return p.keepLocal(res), nil
	}
	res.Emitted, res.Err = p.emit(gateway.EventDeleteMessage, gateway.DeleteCommand{MessageID: id, To: to})
	p.persist(res, func(ctx context.Context) error {
		return p.durability.DeleteMessage(ctx, id)
	})
	return res, nil
}

// keepLocal reports an action on a provisional message, which never leaves
// this process.
func (p *Pipeline) keepLocal(res Result) Result {
	res.Durability = DurabilitySkipped
	res.Err = ErrProvisional
	p.logger.Debug("action on provisional message kept local",
		zap.String("action", string(res.Action)), zap.String("message_id", res.MessageID))
	p.report(res)
	return res
}

// Wait blocks until every durability call in flight has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) newResult(action Action, conv, msgID, content string) Result {
	now := p.now()
	return Result{
		ID:             uuid.NewString(),
		Action:         action,
		ConversationID: conv,
		MessageID:      msgID,
		Content:        content,
		Durability:     DurabilityPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// emit reports whether the channel took the frame. A closed channel is not
// an error: the action stays local.
func (p *Pipeline) emit(event string, payload any) (bool, error) {
	if !p.channel.Connected() {
		p.logger.Debug("channel down, action kept local", zap.String("event", event))
		return false, nil
	}
	if err := p.channel.Emit(event, payload); err != nil {
		if errors.Is(err, gateway.ErrNotConnected) {
			return false, nil
		}
		p.logger.Warn("emit failed", zap.String("event", event), zap.Error(err))
		return false, err
	}
	return true, nil
}

// persist reports res as pending, then runs call in the background and
// reports the final durability state.
func (p *Pipeline) persist(res Result, call func(ctx context.Context) error) {
	p.report(res)
	if p.durability == nil {
		res.Durability = DurabilitySkipped
		res.UpdatedAt = p.now()
		p.report(res)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		err := call(ctx)
		res.UpdatedAt = p.now()
		if err != nil {
			p.logger.Warn("durability call failed",
				zap.String("action", string(res.Action)),
				zap.String("message_id", res.MessageID),
				zap.Error(err))
			res.Durability = DurabilityFailed
			res.Err = errors.Join(res.Err, err)
		} else {
			res.Durability = DurabilityOK
		}
		p.report(res)
	}()
}

func (p *Pipeline) report(res Result) {
	if p.reporter != nil {
		p.reporter.Report(res)
	}
}
