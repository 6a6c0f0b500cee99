package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	exoquery "github.com/exo-run/exoquery"
	"github.com/exo-run/exoquery/reqcontext"
	"github.com/exo-run/exoquery/txscript"
)

// jsonRPCID is spec.md §6's JsonRpcId: a request id that is either a string
// or a number, or absent for a notification. Grounded on
// original_source/.../subsystem_rpc_resolver.rs's untagged String|Number id.
type jsonRPCID struct {
	raw json.RawMessage
	set bool
}

func (id *jsonRPCID) UnmarshalJSON(data []byte) error {
	id.raw = append([]byte(nil), data...)
	id.set = true
	return nil
}

func (id jsonRPCID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// jsonRPCRequest is spec.md §6's envelope: `{jsonrpc, id?, method, params?}`.
// This runtime exposes one method, "graphql", whose params is exactly the
// body handleGraphQL accepts (`{query, variables?, operationName?}`) — the
// JSON-RPC endpoint is an alternate transport framing of the same GraphQL
// execution, carrying spec.md §6's JSON-RPC error code table instead of
// always answering 200 with an "errors" array.
type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsonRPCID      `json:"id"`
	Method  string         `json:"method"`
	Params  graphQLRequest `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsonRPCID      `json:"id,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *jsonRPCError  `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes, per spec.md §6 and
// original_source/.../subsystem_rpc_resolver.rs's SubsystemRpcError ->
// error_code_string() mapping.
const (
	rpcCodeParseError     = -32700
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
	rpcCodeInternalError  = -32603
	rpcCodeUserDisplay    = -32001
	rpcCodeSystemResolve  = -32002
	rpcCodeExpiredAuth    = -32003
	rpcCodeAuthorization  = -32004
	rpcCodeOther          = -32000
)

// handleJSONRPC implements spec.md §6's "Wire — JSON-RPC" endpoint.
func (s *Server) handleJSONRPC(w http.ResponseWriter, req *http.Request) {
	rawBody, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSONRPCError(w, jsonRPCID{}, rpcCodeParseError, "could not read request body")
		return
	}

	var rpcReq jsonRPCRequest
	if err := json.Unmarshal(rawBody, &rpcReq); err != nil {
		writeJSONRPCError(w, jsonRPCID{}, rpcCodeParseError, "invalid JSON")
		return
	}
	if rpcReq.JSONRPC != "" && rpcReq.JSONRPC != "2.0" {
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	switch rpcReq.Method {
	case "graphql":
		s.handleJSONRPCGraphQL(w, req, rawBody, rpcReq)
	case "":
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInvalidRequest, "method is required")
	default:
		writeJSONRPCError(w, rpcReq.ID, rpcCodeMethodNotFound, "unknown method "+rpcReq.Method)
	}
}

func (s *Server) handleJSONRPCGraphQL(w http.ResponseWriter, req *http.Request, rawBody []byte, rpcReq jsonRPCRequest) {
	if rpcReq.Params.Query == "" {
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInvalidParams, `params.query is required`)
		return
	}

	doc, gqlErr := parser.ParseQuery(&ast.Source{Input: rpcReq.Params.Query})
	if gqlErr != nil {
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInvalidParams, gqlErr.Message)
		return
	}

	op, err := selectOperation(doc, rpcReq.Params.OperationName)
	if err != nil {
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInvalidParams, err.Error())
		return
	}

	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if err := s.router.CheckSelectionDepth(field); err != nil {
			writeJSONRPCError(w, rpcReq.ID, rpcCodeInvalidParams, err.Error())
			return
		}
	}

	db := s.catalog()
	if db == nil {
		writeJSONRPCError(w, rpcReq.ID, rpcCodeSystemResolve, "no postgres subsystem loaded")
		return
	}

	conn, err := s.openDB()
	if err != nil {
		s.logger().Error("jsonrpc: opening database connection", "error", err)
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInternalError, "internal error")
		return
	}
	defer conn.Close()

	ctx := req.Context()
	holder, err := txscript.Begin(ctx, conn, db)
	if err != nil {
		writeJSONRPCError(w, rpcReq.ID, rpcCodeInternalError, "internal error")
		return
	}

	reqCtx := reqcontext.New(s.requestOf(req, rawBody), s.extractors)

	data, gqlErrs, mutated := s.runOperation(ctx, reqCtx, holder, op, rpcReq.Params.Variables)

	if err := holder.Finalize(mutated && len(gqlErrs) == 0); err != nil {
		s.logger().Error("jsonrpc: finalizing transaction", "error", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if len(gqlErrs) > 0 {
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      rpcReq.ID,
			Error:   &jsonRPCError{Code: rpcCodeForGraphQLError(gqlErrs[0]), Message: gqlErrs[0].Message},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: rpcReq.ID, Result: data})
}

// rpcCodeForGraphQLError maps the first field error's underlying Kind to
// spec.md §6's custom code range, falling back to rpcCodeOther for errors
// that never carried an *exoquery.Error.
func rpcCodeForGraphQLError(gqlErr graphQLError) int {
	switch {
	case gqlErr.kind == exoquery.KindAuthorization:
		return rpcCodeAuthorization
	case gqlErr.kind == exoquery.KindExpiredAuthentication:
		return rpcCodeExpiredAuth
	case gqlErr.kind == exoquery.KindValidation || gqlErr.kind == exoquery.KindMissingArgument || gqlErr.kind == exoquery.KindCast:
		return rpcCodeUserDisplay
	case gqlErr.kind != "":
		return rpcCodeSystemResolve
	default:
		return rpcCodeOther
	}
}

// writeJSONRPCError answers a transport-level failure (one that never made
// it to a resolved *exoquery.Error, e.g. a parse or method-not-found
// error). Its HTTP status mirrors httpStatusForKind's own Kind -> status
// table for the codes that correspond to a Kind; codes with no Kind
// counterpart (parse/invalid-request/method-not-found/invalid-params) are
// plain 400s.
func writeJSONRPCError(w http.ResponseWriter, id jsonRPCID, code int, message string) {
	status := http.StatusBadRequest
	switch code {
	case rpcCodeAuthorization:
		status = httpStatusForKind(exoquery.KindAuthorization)
	case rpcCodeExpiredAuth:
		status = httpStatusForKind(exoquery.KindExpiredAuthentication)
	case rpcCodeInternalError, rpcCodeSystemResolve, rpcCodeOther:
		status = httpStatusForKind(exoquery.KindInternal)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonRPCError{Code: code, Message: message},
	})
}
