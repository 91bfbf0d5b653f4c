package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/gateway/apierror"
)

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	if coreErr != nil && coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}
	if coreErr != nil && coreErr.RetryAfter != nil && *coreErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(*coreErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: coreErr})
}

func writeErrorJSON(w http.ResponseWriter, reqID string, err error) {
	coreErr, status := apierror.FromError(err, reqID)
	writeCoreErrorJSON(w, reqID, coreErr, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
