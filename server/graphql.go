package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	exoquery "github.com/exo-run/exoquery"
	"github.com/exo-run/exoquery/reqcontext"
	"github.com/exo-run/exoquery/txscript"
)

// graphQLRequest is spec.md §6's inbound GraphQL body:
// `{ query, variables?, operationName? }`.
type graphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// handleGraphQL implements spec.md §6's "Wire — GraphQL": POST /graphql
// accepts the document, resolves every top-level field of the selected
// operation against the SystemRouter within one transaction (spec.md §5:
// "one transaction per request; commit on successful resolution of the
// whole operations payload; rollback on any error"), and streams back
// either `{"data": {...}}` or `{"errors": [...]}`.
func (s *Server) handleGraphQL(w http.ResponseWriter, req *http.Request) {
	rawBody, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var body graphQLRequest
	if err := json.Unmarshal(rawBody, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	doc, gqlErr := parser.ParseQuery(&ast.Source{Input: body.Query})
	if gqlErr != nil {
		writeJSONError(w, http.StatusBadRequest, gqlErr.Message)
		return
	}

	op, err := selectOperation(doc, body.OperationName)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if err := s.router.CheckSelectionDepth(field); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	db := s.catalog()
	if db == nil {
		writeJSONError(w, http.StatusInternalServerError, "no postgres subsystem loaded")
		return
	}

	conn, err := s.openDB()
	if err != nil {
		s.logger().Error("graphql: opening database connection", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer conn.Close()

	ctx := req.Context()
	holder, err := txscript.Begin(ctx, conn, db)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	reqCtx := reqcontext.New(s.requestOf(req, rawBody), s.extractors)

	data, gqlErrs, mutated := s.runOperation(ctx, reqCtx, holder, op, body.Variables)

	if err := holder.Finalize(mutated && len(gqlErrs) == 0); err != nil {
		s.logger().Error("graphql: finalizing transaction", "error", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if len(gqlErrs) > 0 {
		_ = json.NewEncoder(w).Encode(struct {
			Data   map[string]any `json:"data,omitempty"`
			Errors []graphQLError `json:"errors"`
		}{Data: data, Errors: gqlErrs})
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Data map[string]any `json:"data"`
	}{Data: data})
}

// selectOperation picks the operation body.OperationName names, or the
// document's sole operation when it carries only one and no name was
// given — matching GraphQL's own "operationName is required when the
// document defines more than one operation" rule.
func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0], nil
		}
		return nil, errors.New("operationName is required when a document defines more than one operation")
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}

// runOperation resolves every top-level field of op against the
// SystemRouter. Per spec.md §5, mutations run sequentially in document
// source order (later mutations must observe earlier ones' writes, and
// running concurrently against one *txscript.Holder would race its step
// cache); queries within a document may run concurrently, since plain
// reads go through Holder.RunRaw, which shares the transaction without
// touching that cache. mutated reports whether op.Operation was a
// mutation, for the caller's commit/rollback decision.
func (s *Server) runOperation(ctx context.Context, reqCtx *reqcontext.RequestContext, holder *txscript.Holder, op *ast.OperationDefinition, vars map[string]any) (data map[string]any, errs []graphQLError, mutated bool) {
	fields := make([]*ast.Field, 0, len(op.SelectionSet))
	for _, sel := range op.SelectionSet {
		if f, ok := sel.(*ast.Field); ok {
			fields = append(fields, f)
		}
	}

	data = make(map[string]any, len(fields))
	results := make([]any, len(fields))
	fieldErrs := make([]error, len(fields))

	resolveOne := func(i int) {
		field := fields[i]
		res, found := s.router.Route(op.Operation, field.Name)
		if !found {
			fieldErrs[i] = exoquery.NewValidationError(fmt.Sprintf("unknown field %q", field.Name))
			return
		}
		value, err := res.ResolveField(ctx, reqCtx, holder, op.Operation, field, vars)
		if err != nil {
			// Debug builds abort on a programmer error instead of masking
			// it behind a generic 500, per the original's "abort process
			// in debug, 500 in release" behavior: a mutation (resolved on
			// this goroutine) is caught by panicRecovery; a query
			// (resolved concurrently, see below) crashes the process,
			// matching the original's literal "abort" more closely.
			if s.cfg.Debug && exoquery.IsKind(err, exoquery.KindInternal) {
				panic(err)
			}
			fieldErrs[i] = err
			return
		}
		results[i] = value
	}

	if op.Operation == ast.Mutation {
		mutated = true
		for i := range fields {
			resolveOne(i)
			if fieldErrs[i] != nil {
				break
			}
		}
	} else {
		var wg sync.WaitGroup
		for i := range fields {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resolveOne(i)
			}(i)
		}
		wg.Wait()
	}

	for i, field := range fields {
		alias := field.Alias
		if alias == "" {
			alias = field.Name
		}
		if fieldErrs[i] != nil {
			errs = append(errs, toGraphQLError(fieldErrs[i]))
			continue
		}
		data[alias] = results[i]
	}
	return data, errs, mutated
}

func toGraphQLError(err error) graphQLError {
	var e *exoquery.Error
	if errors.As(err, &e) {
		return graphQLError{Message: e.UserMessage(), kind: e.Kind}
	}
	return graphQLError{Message: err.Error()}
}
