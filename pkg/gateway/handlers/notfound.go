package handlers

import (
	"fmt"
	"net/http"

	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/gateway/mw"
)

// NotFoundHandler answers every path the gateway does not route. Candidates
// connect to /v1/interview and reviewers read /v1/reports.
type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeCoreErrorJSON(w, reqID, &core.Error{
		Type:    core.ErrNotFound,
		Message: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
		Code:    "unknown_route",
	}, http.StatusNotFound)
}
