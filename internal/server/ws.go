package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/riskforge/attree/internal/codec"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type     string          `json:"type"` // create_group, join_group, tree_data, tree_req
	GroupKey string          `json:"group_key,omitempty"`
	Tree     json.RawMessage `json:"tree,omitempty"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type     string          `json:"type"` // group_key_avl, joined, tree_data, error
	OK       string          `json:"ok,omitempty"` // OK, KEY_IN_USE, KEY_NOT_FOUND
	GroupKey string          `json:"group_key,omitempty"`
	Tree     json.RawMessage `json:"tree,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// client is one connected collaborator. Writes are serialized per
// connection; gorilla connections do not allow concurrent writers.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(resp wsResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(resp)
}

// Hub tracks live WebSocket connections by connection id and delivers
// session broadcasts to them. It is the session manager's Sender.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
}

func newHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Send implements session.Sender: push a snapshot to one connection.
func (h *Hub) Send(connID string, snapshot json.RawMessage) error {
	h.mu.Lock()
	c := h.clients[connID]
	h.mu.Unlock()
	if c == nil {
		return fmt.Errorf("connection %s is gone", connID)
	}
	return c.write(wsResponse{Type: "tree_data", Tree: snapshot})
}

func (h *Hub) add(connID string, c *client) {
	h.mu.Lock()
	h.clients[connID] = c
	h.mu.Unlock()
}

func (h *Hub) remove(connID string) {
	h.mu.Lock()
	delete(h.clients, connID)
	h.mu.Unlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxSnapshotBytes)

	connID := uuid.NewString()
	c := &client{conn: conn}
	s.hub.add(connID, c)
	defer func() {
		s.sessions.Leave(connID)
		s.hub.remove(connID)
	}()
	log.Printf("server: collaborator %s connected", connID)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read: %v", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError(c, "invalid message format")
			continue
		}

		switch req.Type {
		case "create_group":
			s.handleCreateGroup(c, connID, req)
		case "join_group":
			s.handleJoinGroup(c, connID, req)
		case "tree_data":
			s.handleTreeData(c, connID, req)
		case "tree_req":
			s.handleTreeReq(c, connID)
		default:
			s.sendError(c, "unknown message type: "+req.Type)
		}
	}
}

func (s *Server) handleCreateGroup(c *client, connID string, req wsRequest) {
	if req.GroupKey == "" {
		s.sendError(c, "group_key is required")
		return
	}
	if _, err := codec.Decode(req.Tree); err != nil {
		s.sendError(c, "rejected initial tree: "+err.Error())
		return
	}

	resp := wsResponse{Type: "group_key_avl", OK: "OK", GroupKey: req.GroupKey}
	if err := s.sessions.Create(req.GroupKey, req.Tree, connID); err != nil {
		resp.OK = "KEY_IN_USE"
	}
	s.send(c, resp)
}

func (s *Server) handleJoinGroup(c *client, connID string, req wsRequest) {
	snap, err := s.sessions.Join(req.GroupKey, connID)
	if err != nil {
		s.send(c, wsResponse{Type: "joined", OK: "KEY_NOT_FOUND", GroupKey: req.GroupKey})
		return
	}
	s.send(c, wsResponse{Type: "joined", OK: "OK", GroupKey: req.GroupKey})
	s.send(c, wsResponse{Type: "tree_data", Tree: snap})
}

func (s *Server) handleTreeData(c *client, connID string, req wsRequest) {
	key := req.GroupKey
	if key == "" {
		// Fall back to the sender's group so clients don't have to
		// repeat the key on every edit.
		var ok bool
		if key, ok = s.sessions.GroupOf(connID); !ok {
			return
		}
	}
	// A malformed snapshot from one collaborator must reject that one
	// update, never crash the session or corrupt the stored tree.
	if _, err := codec.Decode(req.Tree); err != nil {
		s.sendError(c, "rejected tree update: "+err.Error())
		return
	}
	s.sessions.Update(key, req.Tree, connID)
}

func (s *Server) handleTreeReq(c *client, connID string) {
	snap, err := s.sessions.Snapshot(connID)
	if err != nil {
		s.sendError(c, "not in a group")
		return
	}
	s.send(c, wsResponse{Type: "tree_data", Tree: snap})
}

func (s *Server) send(c *client, resp wsResponse) {
	if err := c.write(resp); err != nil {
		log.Printf("server: websocket write: %v", err)
	}
}

func (s *Server) sendError(c *client, message string) {
	s.send(c, wsResponse{Type: "error", Message: message})
}
