package server

import (
	"encoding/json"
	"net/http"

	exoquery "github.com/exo-run/exoquery"
)

// writeJSONError writes a bare {"errors":[{"message":...}]} body, for
// transport-level failures that never made it into the GraphQL
// error-collection path (e.g. rate limiting, panics).
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(graphQLErrorsBody{
		Errors: []graphQLError{{Message: message}},
	})
}

// graphQLErrorsBody and graphQLError implement spec.md §6's GraphQL error
// envelope: `{ "errors": [ { "message": ..., "locations": [...]? } ] }`.
type graphQLErrorsBody struct {
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message   string       `json:"message"`
	Locations []graphQLLoc `json:"locations,omitempty"`
	Path      []any        `json:"path,omitempty"`

	// kind is never serialized into the GraphQL envelope (which has no
	// notion of error kinds); it is carried along so the JSON-RPC endpoint
	// can translate the same resolved error into spec.md §6's numeric
	// code table without re-inspecting the original error value.
	kind exoquery.Kind
}

type graphQLLoc struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// httpStatusForKind maps an exoquery.Error Kind to the HTTP status code
// the GraphQL endpoint replies with; GraphQL itself always answers 200
// with an "errors" array per spec, so this is only used by the JSON-RPC
// endpoint and by transport-level failures outside the GraphQL envelope.
func httpStatusForKind(kind exoquery.Kind) int {
	switch kind {
	case exoquery.KindValidation, exoquery.KindMissingArgument, exoquery.KindCast:
		return http.StatusBadRequest
	case exoquery.KindAuthorization:
		return http.StatusForbidden
	case exoquery.KindExpiredAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
