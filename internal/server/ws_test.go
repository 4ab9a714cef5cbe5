package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/riskforge/attree/internal/codec"
	"github.com/riskforge/attree/internal/tree"
)

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	return conn
}

func exampleSnapshot(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := codec.Marshal(codec.Export(tree.Example()))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return raw
}

func readResponse(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	var resp wsResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func TestGroupCollaborationFlow(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	creator := dialWS(t, ts)
	joiner := dialWS(t, ts)
	snapshot := exampleSnapshot(t)

	// Create the group, then join explicitly: creation reserves the key
	// but does not enroll the creator.
	if err := creator.WriteJSON(wsRequest{Type: "create_group", GroupKey: "g1", Tree: snapshot}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, creator); resp.Type != "group_key_avl" || resp.OK != "OK" {
		t.Fatalf("create reply = %+v", resp)
	}

	if err := creator.WriteJSON(wsRequest{Type: "join_group", GroupKey: "g1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, creator); resp.Type != "joined" || resp.OK != "OK" {
		t.Fatalf("join reply = %+v", resp)
	}
	if resp := readResponse(t, creator); resp.Type != "tree_data" || len(resp.Tree) == 0 {
		t.Fatalf("expected snapshot after join, got %+v", resp)
	}

	// Second collaborator joins and gets the same snapshot.
	if err := joiner.WriteJSON(wsRequest{Type: "join_group", GroupKey: "g1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, joiner); resp.OK != "OK" {
		t.Fatalf("join reply = %+v", resp)
	}
	readResponse(t, joiner) // initial tree_data

	// An update from the joiner reaches every member, sender included.
	if err := joiner.WriteJSON(wsRequest{Type: "tree_data", GroupKey: "g1", Tree: snapshot}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, creator); resp.Type != "tree_data" {
		t.Fatalf("creator missed the broadcast: %+v", resp)
	}
	if resp := readResponse(t, joiner); resp.Type != "tree_data" {
		t.Fatalf("joiner missed the echo: %+v", resp)
	}

	// tree_req pulls the current snapshot back down.
	if err := creator.WriteJSON(wsRequest{Type: "tree_req"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, creator); resp.Type != "tree_data" || len(resp.Tree) == 0 {
		t.Fatalf("tree_req reply = %+v", resp)
	}
}

func TestCreateGroupKeyInUse(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	snapshot := exampleSnapshot(t)

	conn.WriteJSON(wsRequest{Type: "create_group", GroupKey: "dup", Tree: snapshot})
	readResponse(t, conn)

	conn.WriteJSON(wsRequest{Type: "create_group", GroupKey: "dup", Tree: snapshot})
	if resp := readResponse(t, conn); resp.OK != "KEY_IN_USE" {
		t.Fatalf("expected KEY_IN_USE, got %+v", resp)
	}
}

func TestJoinUnknownGroup(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	conn.WriteJSON(wsRequest{Type: "join_group", GroupKey: "nope"})
	if resp := readResponse(t, conn); resp.Type != "joined" || resp.OK != "KEY_NOT_FOUND" {
		t.Fatalf("expected KEY_NOT_FOUND, got %+v", resp)
	}
}

func TestMalformedSnapshotRejected(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	snapshot := exampleSnapshot(t)

	conn.WriteJSON(wsRequest{Type: "create_group", GroupKey: "g1", Tree: snapshot})
	readResponse(t, conn)
	conn.WriteJSON(wsRequest{Type: "join_group", GroupKey: "g1"})
	readResponse(t, conn)
	readResponse(t, conn)

	// A malformed update is rejected without killing the session or
	// replacing the stored snapshot.
	conn.WriteJSON(wsRequest{Type: "tree_data", GroupKey: "g1", Tree: json.RawMessage(`{"cells":[]}`)})
	if resp := readResponse(t, conn); resp.Type != "error" {
		t.Fatalf("expected error reply, got %+v", resp)
	}

	conn.WriteJSON(wsRequest{Type: "tree_req"})
	resp := readResponse(t, conn)
	if resp.Type != "tree_data" {
		t.Fatalf("session died after bad update: %+v", resp)
	}
	if _, err := codec.Decode(resp.Tree); err != nil {
		t.Fatalf("stored snapshot corrupted: %v", err)
	}
}

func TestUnknownMessageType(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	conn.WriteJSON(wsRequest{Type: "dance"})
	if resp := readResponse(t, conn); resp.Type != "error" {
		t.Fatalf("expected error, got %+v", resp)
	}
}
