package lsp

import (
	"encoding/json"
	"strings"
)

// The subset of LSP structures the oracle contract needs: positional call
// hierarchy preparation and incoming-call enumeration.

type position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     position               `json:"position"`
}

type callHierarchyItem struct {
	Name           string   `json:"name"`
	Kind           int      `json:"kind"`
	URI            string   `json:"uri"`
	Range          lspRange `json:"range"`
	SelectionRange lspRange `json:"selectionRange"`
}

type callHierarchyIncomingCallsParams struct {
	Item callHierarchyItem `json:"item"`
}

type callHierarchyIncomingCall struct {
	From       callHierarchyItem `json:"from"`
	FromRanges []lspRange        `json:"fromRanges"`
}

type initializeParams struct {
	ProcessID    int             `json:"processId"`
	RootURI      string          `json:"rootUri"`
	Capabilities json.RawMessage `json:"capabilities"`
}

// symbolKindFunction is the LSP SymbolKind for functions.
const symbolKindFunction = 12

// message is a JSON-RPC 2.0 envelope covering requests, responses, and
// notifications.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fileURI converts an absolute path to a file: URI.
func fileURI(path string) string {
	return "file://" + path
}

// uriToPath converts a file: URI back to a filesystem path.
func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
