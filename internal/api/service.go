package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/model"
	"github.com/matheus3301/wppsync/internal/outbox"
	"github.com/matheus3301/wppsync/internal/store"
	intsync "github.com/matheus3301/wppsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Engine is the part of the sync engine exposed over the API.
type Engine interface {
	Status(ctx context.Context) (intsync.StatusView, error)
	Roster(ctx context.Context) (intsync.RosterView, error)
	LoadMoreContacts(ctx context.Context) error
	Open(ctx context.Context, key string) (intsync.View, error)
	Messages(ctx context.Context, key string) (intsync.View, error)
	Send(ctx context.Context, key, content string) (model.Message, error)
	Edit(ctx context.Context, key, id, content string) (outbox.Result, error)
	Delete(ctx context.Context, key, id string) (outbox.Result, error)
	Resync(ctx context.Context, key string) (intsync.View, error)
	Pairing(ctx context.Context) (intsync.PairingView, error)
}

// Journal lists recorded outbound actions.
type Journal interface {
	ListActions(failedOnly bool, limit int) ([]store.Action, error)
}

// WatchedNamespaces are the bus namespaces streamed by WatchEvents.
var WatchedNamespaces = []string{bus.NSConv, bus.NSRoster, bus.NSStatus, bus.NSOutbound, bus.NSPairing}

// WatchRequest optionally narrows WatchEvents to some namespaces.
type WatchRequest struct {
	Namespaces []string `json:"namespaces,omitempty"`
}

// Service implements EngineServer on top of the engine.
type Service struct {
	sessionName string
	startedAt   time.Time
	engine      Engine
	journal     Journal
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewService creates the API service. journal may be nil, in which case
// ListActions fails with Unavailable.
func NewService(sessionName string, engine Engine, journal Journal, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{
		sessionName: sessionName,
		startedAt:   time.Now(),
		engine:      engine,
		journal:     journal,
		bus:         b,
		logger:      logger,
	}
}

var _ EngineServer = (*Service)(nil)

func (s *Service) GetStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	v, err := s.engine.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(Status{
		Session:           s.sessionName,
		State:             string(v.State),
		Since:             v.Since,
		Connected:         v.Connected,
		Paired:            v.Paired,
		OpenConversations: v.OpenConversations,
		Contacts:          v.Contacts,
		DroppedEvents:     v.DroppedEvents,
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *Service) ListContacts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.roster(ctx)
}

func (s *Service) LoadMoreContacts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.engine.LoadMoreContacts(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.roster(ctx)
}

func (s *Service) roster(ctx context.Context) (*structpb.Struct, error) {
	v, err := s.engine.Roster(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := Roster{Contacts: make([]Contact, 0, len(v.Contacts)), Page: v.Page, HasMore: v.HasMore}
	for _, c := range v.Contacts {
		out.Contacts = append(out.Contacts, contactOut(c))
	}
	return reply(out)
}

func (s *Service) OpenConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.conversation(ctx, in, s.engine.Open)
}

func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.conversation(ctx, in, s.engine.Messages)
}

func (s *Service) Resync(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.conversation(ctx, in, s.engine.Resync)
}

func (s *Service) conversation(ctx context.Context, in *structpb.Struct, fn func(context.Context, string) (intsync.View, error)) (*structpb.Struct, error) {
	var req ConversationRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Contact == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact is required")
	}
	v, err := fn(ctx, req.Contact)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(conversationOut(v))
}

func (s *Service) SendText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Contact == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact is required")
	}
	msg, err := s.engine.Send(ctx, req.Contact, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(messageOut(msg))
}

func (s *Service) EditMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req EditRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Contact == "" || req.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact and id are required")
	}
	res, err := s.engine.Edit(ctx, req.Contact, req.ID, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(resultOut(res))
}

func (s *Service) DeleteMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DeleteRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Contact == "" || req.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact and id are required")
	}
	res, err := s.engine.Delete(ctx, req.Contact, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(resultOut(res))
}

func (s *Service) GetPairing(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	v, err := s.engine.Pairing(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(Pairing{QR: v.QR, Paired: v.Paired})
}

func (s *Service) ListActions(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.journal == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "journal not available")
	}
	var req ListActionsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	actions, err := s.journal.ListActions(req.FailedOnly, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list actions: %v", err)
	}
	out := ActionList{Actions: make([]ActionResult, 0, len(actions))}
	for _, a := range actions {
		out.Actions = append(out.Actions, actionOut(a))
	}
	return reply(out)
}

// WatchEvents streams engine events until the client goes away.
func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	namespaces := req.Namespaces
	if len(namespaces) == 0 {
		namespaces = WatchedNamespaces
	}
	for _, ns := range namespaces {
		if !watched(ns) {
			return grpcstatus.Errorf(codes.InvalidArgument, "namespace %q cannot be watched", ns)
		}
	}

	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-ch:
			if !matches(evt.Kind, namespaces) {
				continue
			}
			out, err := toStruct(eventOut(evt))
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

func watched(ns string) bool {
	for _, w := range WatchedNamespaces {
		if strings.HasPrefix(ns, w) {
			return true
		}
	}
	return false
}

func matches(kind string, namespaces []string) bool {
	for _, ns := range namespaces {
		if strings.HasPrefix(kind, ns) {
			return true
		}
	}
	return false
}

func decode(in *structpb.Struct, v any) error {
	if err := fromStruct(in, v); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	return nil
}

func reply(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

// toStatus maps engine errors to gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, intsync.ErrUnknownContact), errors.Is(err, outbox.ErrUnknownMessage):
		code = codes.NotFound
	case errors.Is(err, intsync.ErrNotOpen), errors.Is(err, intsync.ErrNoMoreContacts):
		code = codes.FailedPrecondition
	case errors.Is(err, outbox.ErrEmptyContent):
		code = codes.InvalidArgument
	case errors.Is(err, intsync.ErrStopped):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
