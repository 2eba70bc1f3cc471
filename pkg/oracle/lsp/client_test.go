package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/pkg/oracle"
	"github.com/jeremyadavis/turbo/pkg/registry"
	"github.com/jeremyadavis/turbo/pkg/types"
)

func frame(t *testing.T, msg *message) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body))
}

func TestReadMessage_Framing(t *testing.T) {
	id := int64(7)
	input := frame(t, &message{JSONRPC: "2.0", ID: &id, Result: json.RawMessage(`[]`)})

	msg, err := readMessage(bufio.NewReader(bytes.NewReader(input)))
	require.NoError(t, err)
	require.NotNil(t, msg.ID)
	assert.Equal(t, int64(7), *msg.ID)
	assert.Equal(t, json.RawMessage(`[]`), msg.Result)
}

func TestReadMessage_ExtraHeadersAndCase(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"window/logMessage"}`
	input := fmt.Sprintf(
		"content-length: %d\r\nContent-Type: application/vscode-jsonrpc\r\n\r\n%s",
		len(body), body)

	msg, err := readMessage(bufio.NewReader(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, "window/logMessage", msg.Method)
}

func TestReadMessage_MissingContentLength(t *testing.T) {
	_, err := readMessage(bufio.NewReader(strings.NewReader("\r\n{}")))
	require.Error(t, err)
}

func TestFileURIRoundTrip(t *testing.T) {
	assert.Equal(t, "file:///repo/src/lib.rs", fileURI("/repo/src/lib.rs"))
	assert.Equal(t, "/repo/src/lib.rs", uriToPath("file:///repo/src/lib.rs"))
}

// newTestClient wires a Client to an in-process fake server. serve maps one
// incoming request to its result payload; returning nil yields a null result.
func newTestClient(t *testing.T, serve func(method string) interface{}) *Client {
	t.Helper()

	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	c := &Client{
		stdin:   clientOut,
		timeout: 2 * time.Second,
		logger:  log.Default(),
		pending: make(map[int64]chan *message),
	}
	go c.readLoop(bufio.NewReader(clientIn))

	go func() {
		r := bufio.NewReader(serverIn)
		for {
			req, err := readMessage(r)
			if err != nil {
				return
			}
			if req.ID == nil {
				continue
			}
			resp := &message{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`null`)}
			if result := serve(req.Method); result != nil {
				data, err := json.Marshal(result)
				if err != nil {
					return
				}
				resp.Result = data
			}
			body, err := json.Marshal(resp)
			if err != nil {
				return
			}
			fmt.Fprintf(serverOut, "Content-Length: %d\r\n\r\n%s", len(body), body)
		}
	}()

	t.Cleanup(func() {
		clientOut.Close()
		serverOut.Close()
	})
	return c
}

func hierarchySymbol() registry.Symbol {
	return registry.Symbol{
		Name:     "fetch",
		File:     "/repo/src/lib.rs",
		Point:    types.Point{Row: 11, Column: 9},
		Language: types.Rust,
	}
}

func TestFindCallSites_ExpandsIncomingCalls(t *testing.T) {
	c := newTestClient(t, func(method string) interface{} {
		switch method {
		case "textDocument/prepareCallHierarchy":
			return []callHierarchyItem{{
				Name: "fetch",
				Kind: symbolKindFunction,
				URI:  "file:///repo/src/lib.rs",
			}}
		case "callHierarchy/incomingCalls":
			return []callHierarchyIncomingCall{{
				From: callHierarchyItem{
					Name: "compile",
					URI:  "file:///repo/src/build.rs",
					Range: lspRange{
						Start: position{Line: 20, Character: 0},
						End:   position{Line: 30, Character: 1},
					},
				},
				FromRanges: []lspRange{
					{Start: position{Line: 22, Character: 8}},
					{Start: position{Line: 25, Character: 12}},
				},
			}}
		}
		return nil
	})

	refs, err := c.FindCallSites(context.Background(), hierarchySymbol())
	require.NoError(t, err)
	require.Len(t, refs, 2, "one reference per reported call range")

	assert.Equal(t, "/repo/src/build.rs", refs[0].Call.File)
	assert.Equal(t, types.Point{Row: 22, Column: 8}, refs[0].Call.Point)
	assert.Equal(t, "compile", refs[0].EnclosingName)
	assert.Equal(t, "/repo/src/build.rs", refs[0].EnclosingFile)
	assert.Equal(t, types.Point{Row: 20, Column: 0}, refs[0].EnclosingRange.Start)

	assert.Equal(t, types.Point{Row: 25, Column: 12}, refs[1].Call.Point)
}

func TestFindCallSites_EmptyPrepareIsTimeout(t *testing.T) {
	c := newTestClient(t, func(method string) interface{} {
		if method == "textDocument/prepareCallHierarchy" {
			return []callHierarchyItem{}
		}
		return nil
	})

	_, err := c.FindCallSites(context.Background(), hierarchySymbol())
	require.Error(t, err)
	assert.True(t, oracle.IsTimeout(err),
		"an empty hierarchy answer must be retryable, the server may still be indexing")
}

func TestFindCallSites_ServerErrorIsUnavailable(t *testing.T) {
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	c := &Client{
		stdin:   clientOut,
		timeout: 2 * time.Second,
		logger:  log.Default(),
		pending: make(map[int64]chan *message),
	}
	go c.readLoop(bufio.NewReader(clientIn))
	go func() {
		r := bufio.NewReader(serverIn)
		for {
			req, err := readMessage(r)
			if err != nil {
				return
			}
			resp := &message{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &responseError{Code: -32803, Message: "content modified"},
			}
			body, _ := json.Marshal(resp)
			fmt.Fprintf(serverOut, "Content-Length: %d\r\n\r\n%s", len(body), body)
		}
	}()
	t.Cleanup(func() {
		clientOut.Close()
		serverOut.Close()
	})

	_, err := c.FindCallSites(context.Background(), hierarchySymbol())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestClient_AcknowledgesServerRequests(t *testing.T) {
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	c := &Client{
		stdin:   clientOut,
		timeout: 2 * time.Second,
		logger:  log.Default(),
		pending: make(map[int64]chan *message),
	}
	go c.readLoop(bufio.NewReader(clientIn))
	t.Cleanup(func() {
		clientOut.Close()
		serverOut.Close()
	})

	// The server asks to register a capability mid-session.
	serverID := int64(99)
	req := &message{JSONRPC: "2.0", ID: &serverID, Method: "client/registerCapability"}
	go func() {
		body, _ := json.Marshal(req)
		fmt.Fprintf(serverOut, "Content-Length: %d\r\n\r\n%s", len(body), body)
	}()

	reply, err := readMessage(bufio.NewReader(serverIn))
	require.NoError(t, err)
	require.NotNil(t, reply.ID)
	assert.Equal(t, serverID, *reply.ID)
	assert.Equal(t, json.RawMessage(`null`), reply.Result)
	assert.Nil(t, reply.Error)
}
