package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/gateway/mw"
)

// ReportReader is the read side of report storage.
type ReportReader interface {
	GetReport(ctx context.Context, id string) (report.Report, error)
	ListReports(ctx context.Context, limit int) ([]report.Report, error)
}

// ReportsHandler serves GET /v1/reports and GET /v1/reports/{id}.
type ReportsHandler struct {
	Reports ReportReader
}

type reportList struct {
	Reports []report.Report `json:"reports"`
}

func (h ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Reports == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "report store is not configured"}, http.StatusServiceUnavailable)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/reports"), "/")
	if id != "" {
		rep, err := h.Reports.GetReport(r.Context(), id)
		if err != nil {
			writeErrorJSON(w, reqID, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "limit must be a positive integer", Param: "limit"}, http.StatusBadRequest)
			return
		}
		limit = n
	}
	reports, err := h.Reports.ListReports(r.Context(), limit)
	if err != nil {
		writeErrorJSON(w, reqID, err)
		return
	}
	if reports == nil {
		reports = []report.Report{}
	}
	writeJSON(w, http.StatusOK, reportList{Reports: reports})
}
