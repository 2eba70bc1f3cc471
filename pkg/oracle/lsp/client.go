// Package lsp implements the analysis-oracle contract on top of a language
// server speaking LSP over stdio (rust-analyzer in practice). Call sites are
// resolved with textDocument/prepareCallHierarchy followed by
// callHierarchy/incomingCalls.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/pkg/oracle"
	"github.com/jeremyadavis/turbo/pkg/registry"
	"github.com/jeremyadavis/turbo/pkg/types"
)

// Options configures the language-server session.
type Options struct {
	// Command is the server argv, e.g. ["rust-analyzer"].
	Command []string
	// RootPath is the workspace root handed to the server at initialize.
	RootPath string
	// QueryTimeout bounds each individual request.
	QueryTimeout time.Duration
	Logger       *log.Logger
}

// Client is an oracle.Client backed by a single language-server session.
// Requests may be issued concurrently; responses are matched to callers by
// JSON-RPC id.
type Client struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *message
	closed  bool
	readErr error
}

// Start launches the language server and performs the initialize handshake.
// Returns an error wrapping oracle.ErrUnavailable when the server cannot be
// started or will not answer the handshake.
func Start(ctx context.Context, opts Options) (*Client, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("%w: no oracle command configured", oracle.ErrUnavailable)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", oracle.ErrUnavailable, opts.Command[0], err)
	}

	c := &Client{
		cmd:     cmd,
		stdin:   stdin,
		timeout: timeout,
		logger:  logger,
		pending: make(map[int64]chan *message),
	}
	go c.readLoop(bufio.NewReader(stdout))

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	params := initializeParams{
		RootURI:      fileURI(opts.RootPath),
		Capabilities: json.RawMessage(`{}`),
	}
	if _, err := c.request(initCtx, "initialize", params); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: initialize failed: %v", oracle.ErrUnavailable, err)
	}
	if err := c.notify("initialized", json.RawMessage(`{}`)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: initialized notification failed: %v", oracle.ErrUnavailable, err)
	}

	logger.Debug("oracle session started", "command", strings.Join(opts.Command, " "))
	return c, nil
}

// FindCallSites resolves the symbol's call hierarchy item, then expands its
// incoming calls into one RawReference per reported call range. An empty
// prepare answer is reported as a timeout: the server typically has not
// finished indexing yet, and the caller's bounded retry handles it.
func (c *Client) FindCallSites(ctx context.Context, sym registry.Symbol) ([]oracle.RawReference, error) {
	prepareParams := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: fileURI(sym.File)},
		Position:     position{Line: sym.Point.Row, Character: sym.Point.Column},
	}

	var items []callHierarchyItem
	if err := c.call(ctx, sym, "textDocument/prepareCallHierarchy", prepareParams, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &oracle.TimeoutError{
			Symbol: sym.ID(),
			Err:    errors.New("empty call hierarchy answer (server may still be indexing)"),
		}
	}

	var refs []oracle.RawReference
	for _, item := range items {
		var incoming []callHierarchyIncomingCall
		if err := c.call(ctx, sym, "callHierarchy/incomingCalls", callHierarchyIncomingCallsParams{Item: item}, &incoming); err != nil {
			return nil, err
		}
		for _, in := range incoming {
			callerFile := uriToPath(in.From.URI)
			for _, r := range in.FromRanges {
				refs = append(refs, oracle.RawReference{
					Call: types.Location{
						File:  callerFile,
						Point: types.Point{Row: r.Start.Line, Column: r.Start.Character},
					},
					EnclosingName: in.From.Name,
					EnclosingFile: callerFile,
					EnclosingRange: types.Range{
						Start: types.Point{Row: in.From.Range.Start.Line, Column: in.From.Range.Start.Character},
						End:   types.Point{Row: in.From.Range.End.Line, Column: in.From.Range.End.Character},
					},
				})
			}
		}
	}
	return refs, nil
}

// Close shuts the session down, ignoring errors from a server that already
// exited.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = c.request(shutdownCtx, "shutdown", nil)
	_ = c.notify("exit", nil)
	_ = c.stdin.Close()
	return c.cmd.Wait()
}

// call issues one request with the per-query timeout and decodes the result.
func (c *Client) call(ctx context.Context, sym registry.Symbol, method string, params, result interface{}) error {
	queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.request(queryCtx, method, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &oracle.TimeoutError{Symbol: sym.ID(), Err: err}
		}
		return fmt.Errorf("%w: %s: %v", oracle.ErrUnavailable, method, err)
	}
	if result == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: decoding %s result: %v", oracle.ErrUnavailable, method, err)
	}
	return nil
}

// request sends one JSON-RPC request and waits for its response.
func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(&message{JSONRPC: "2.0", ID: &id, Method: method, Params: marshalParams(params)}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp == nil {
			return nil, errors.New("oracle session closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("server error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// notify sends a JSON-RPC notification.
func (c *Client) notify(method string, params interface{}) error {
	return c.send(&message{JSONRPC: "2.0", Method: method, Params: marshalParams(params)})
}

func marshalParams(params interface{}) json.RawMessage {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return data
}

// send writes one framed message to the server.
func (c *Client) send(msg *message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err = c.stdin.Write(body)
	return err
}

// readLoop dispatches responses to waiting requests. Server-initiated
// requests get an empty success reply so the server does not stall;
// notifications are dropped.
func (c *Client) readLoop(r *bufio.Reader) {
	for {
		msg, err := readMessage(r)
		if err != nil {
			c.failPending(err)
			return
		}

		switch {
		case msg.Method != "" && msg.ID != nil:
			// Server-to-client request (capability registration, progress
			// token creation). Acknowledge and move on.
			_ = c.send(&message{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage(`null`)})
		case msg.Method != "":
			// Notification; nothing to do.
		case msg.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		}
	}
}

// failPending wakes every in-flight request after the session dies.
func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.readErr = fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// readMessage reads one Content-Length framed message.
func readMessage(r *bufio.Reader) (*message, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(name, "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("bad Content-Length header: %w", err)
			}
		}
	}
	if contentLength < 0 {
		return nil, errors.New("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &msg, nil
}
