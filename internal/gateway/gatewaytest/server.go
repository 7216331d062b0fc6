// Package gatewaytest provides an in-memory messaging gateway for tests:
// the websocket channel, the durability endpoints and the roster endpoint.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wppsync/internal/gateway"
)

// Command is an outbound event received from a client.
type Command struct {
	Event  string
	Send   gateway.SendCommand
	Edit   gateway.EditCommand
	Delete gateway.DeleteCommand
}

// Server is a fake gateway backed by httptest.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader
	token    string

	mu             sync.Mutex
	conns          map[*peerConn]struct{}
	contacts       []gateway.ContactPayload
	history        map[string][]gateway.MessagePayload
	commands       []Command
	updates        map[string]string
	deletes        []string
	echo           bool
	nextID         int
	failHistory    bool
	failDurability bool
	peerConnected  bool

	cmdCh  chan Command
	connCh chan struct{}
}

type peerConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *peerConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires a bearer token on every request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithEcho makes the server confirm every sendMessage with a newMessage
// carrying a server id ("srv1", "srv2", ...).
func WithEcho() Option {
	return func(s *Server) { s.echo = true }
}

// New starts a fake gateway. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:         make(map[*peerConn]struct{}),
		history:       make(map[string][]gateway.MessagePayload),
		updates:       make(map[string]string),
		peerConnected: true,
		cmdCh:         make(chan Command, 256),
		connCh:        make(chan struct{}, 16),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.HandleFunc("GET /messages/{id}", s.handleHistory)
	mux.HandleFunc("PATCH /messages/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /messages/{id}", s.handleDelete)
	mux.HandleFunc("GET /whatsapp/contacts", s.handleContacts)
	mux.HandleFunc("GET /whatsapp/status", s.handleStatus)
	s.Server = httptest.NewServer(s.auth(mux))
	return s
}

// Options returns client options pointing at this server.
func (s *Server) Options() gateway.Options {
	return gateway.Options{
		BaseURL:            s.URL,
		SocketPath:         "/ws",
		Token:              s.token,
		RequestTimeout:     2 * time.Second,
		ReconnectBaseDelay: 20 * time.Millisecond,
		ReconnectMaxDelay:  100 * time.Millisecond,
	}
}

// SetContacts replaces the roster.
func (s *Server) SetContacts(contacts ...gateway.ContactPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append([]gateway.ContactPayload(nil), contacts...)
}

// SetHistory replaces the stored history of a contact.
func (s *Server) SetHistory(contactID string, msgs ...gateway.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[contactID] = append([]gateway.MessagePayload(nil), msgs...)
}

// FailHistory makes history requests answer 500.
func (s *Server) FailHistory(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failHistory = fail
}

// FailDurability makes PATCH and DELETE answer 500.
func (s *Server) FailDurability(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDurability = fail
}

// SetPeerConnected sets what /whatsapp/status reports.
func (s *Server) SetPeerConnected(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerConnected = ok
}

// Push sends an event to every connected client.
func (s *Server) Push(event string, payload any) error {
	env, err := gateway.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conns := make([]*peerConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if len(conns) == 0 {
		return fmt.Errorf("no connected clients")
	}
	for _, c := range conns {
		if err := c.write(data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every websocket without a close handshake.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.ws.Close()
		delete(s.conns, c)
	}
}

// Connections returns the number of open websockets.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// WaitConnected blocks until a client connects or the timeout elapses.
func (s *Server) WaitConnected(timeout time.Duration) bool {
	select {
	case <-s.connCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitCommand returns the next outbound command from a client.
func (s *Server) WaitCommand(timeout time.Duration) (Command, bool) {
	select {
	case cmd := <-s.cmdCh:
		return cmd, true
	case <-time.After(timeout):
		return Command{}, false
	}
}

// Commands returns every command received so far.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// Updates returns the content persisted through PATCH, by message id.
func (s *Server) Updates() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.updates))
	for k, v := range s.updates {
		out[k] = v
	}
	return out
}

// Deletes returns the message ids removed through DELETE.
func (s *Server) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &peerConn{ws: ws}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	select {
	case s.connCh <- struct{}{}:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env gateway.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.handleCommand(env)
	}
}

func (s *Server) handleCommand(env gateway.Envelope) {
	cmd := Command{Event: env.Event}
	var err error
	switch env.Event {
	case gateway.EventSendMessage:
		err = env.Decode(&cmd.Send)
	case gateway.EventEditMessage:
		err = env.Decode(&cmd.Edit)
	case gateway.EventDeleteMessage:
		err = env.Decode(&cmd.Delete)
	default:
		return
	}
	if err != nil {
		return
	}

	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	echo := s.echo && env.Event == gateway.EventSendMessage
	var reply gateway.MessagePayload
	if echo {
		s.nextID++
		reply = gateway.MessagePayload{
			ID:        "srv" + strconv.Itoa(s.nextID),
			SenderID:  "me",
			To:        cmd.Send.To,
			Content:   cmd.Send.Content,
			CreatedAt: time.Now(),
		}
	}
	s.mu.Unlock()

	select {
	case s.cmdCh <- cmd:
	default:
	}
	if echo {
		_ = s.Push(gateway.EventNewMessage, reply)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, limit := paging(r, 20)
	s.mu.Lock()
	fail := s.failHistory
	all := s.history[r.PathValue("id")]
	s.mu.Unlock()
	if fail {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	items, more := slicePage(len(all), page, limit)
	writeJSON(w, gateway.HistoryPage{Messages: append([]gateway.MessagePayload{}, all[items[0]:items[1]]...), HasMore: more})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDurability {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	s.updates[r.PathValue("id")] = body.Content
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDurability {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	s.deletes = append(s.deletes, r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	page, limit := paging(r, 50)
	s.mu.Lock()
	all := s.contacts
	s.mu.Unlock()
	items, more := slicePage(len(all), page, limit)
	writeJSON(w, gateway.ContactsPage{
		Contacts: append([]gateway.ContactPayload{}, all[items[0]:items[1]]...),
		Total:    len(all),
		Page:     page,
		Limit:    limit,
		HasMore:  more,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ok := s.peerConnected
	s.mu.Unlock()
	writeJSON(w, gateway.PeerStatus{IsConnected: ok})
}

func paging(r *http.Request, defLimit int) (int, int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = defLimit
	}
	return page, limit
}

// slicePage returns [start, end) bounds of a 1-based page and whether more follow.
func slicePage(n, page, limit int) ([2]int, bool) {
	start := (page - 1) * limit
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return [2]int{start, end}, end < n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
