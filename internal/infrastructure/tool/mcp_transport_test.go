package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransport_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %q", req.JSONRPC)
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"ok":true}}`, req.ID)
	}))
	defer srv.Close()

	tr := newHTTPTransport(srv.URL)
	resp, err := tr.RoundTrip(context.Background(), jsonRPCRequest{JSONRPC: "2.0", ID: 7, Method: "tools/list"})
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	if resp.ID != 7 {
		t.Fatalf("expected id 7, got %d", resp.ID)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", resp.Result)
	}
}

func TestHTTPTransport_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := newHTTPTransport(srv.URL)
	if _, err := tr.RoundTrip(context.Background(), jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "x"}); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestSSETransport_ParsesDataLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, ": comment line ignored")
		fmt.Fprintln(w, "event: message")
		fmt.Fprintln(w, `data: {"jsonrpc":"2.0","id":3,"result":"hello"}`)
		fmt.Fprintln(w)
	}))
	defer srv.Close()

	tr := newSSETransport(srv.URL)
	resp, err := tr.RoundTrip(context.Background(), jsonRPCRequest{JSONRPC: "2.0", ID: 3, Method: "tools/call"})
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	var result string
	if err := json.Unmarshal(resp.Result, &result); err != nil || result != "hello" {
		t.Fatalf("unexpected result: %s (err %v)", resp.Result, err)
	}
}

func TestSSETransport_AcceptsBareJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"jsonrpc":"2.0","id":4,"result":42}`)
	}))
	defer srv.Close()

	tr := newSSETransport(srv.URL)
	resp, err := tr.RoundTrip(context.Background(), jsonRPCRequest{JSONRPC: "2.0", ID: 4, Method: "tools/call"})
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	if string(resp.Result) != "42" {
		t.Fatalf("unexpected result: %s", resp.Result)
	}
}

func TestStdioTransport_LineFraming(t *testing.T) {
	// A minimal line-framed echo peer: answers every request line with a
	// fixed JSON-RPC response whose id matches the request below.
	script := `while read line; do echo '{"jsonrpc":"2.0","id":9,"result":"pong"}'; done`
	tr := newStdioTransport([]string{"sh", "-c", script})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := tr.RoundTrip(ctx, jsonRPCRequest{JSONRPC: "2.0", ID: 9, Method: "ping"})
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	var result string
	if err := json.Unmarshal(resp.Result, &result); err != nil || result != "pong" {
		t.Fatalf("unexpected result: %s (err %v)", resp.Result, err)
	}
}

func TestStdioTransport_PeerClosed(t *testing.T) {
	// Peer exits immediately — the transport must report the closed stream,
	// not hang for the full response timeout.
	tr := newStdioTransport([]string{"sh", "-c", "exit 0"})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := tr.RoundTrip(ctx, jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "ping"}); err == nil {
		t.Fatal("expected error after peer closed stdout")
	}
}

func TestStdioTransport_NoCommand(t *testing.T) {
	tr := newStdioTransport(nil)
	if _, err := tr.RoundTrip(context.Background(), jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "ping"}); err == nil {
		t.Fatal("expected error when no command is configured")
	}
}
