package v1

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/tinoosan/daybook/internal/export"
	"github.com/tinoosan/daybook/internal/ledger"
)

// GET /v1/periods
func (s *Server) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.svc.ListPeriods(r.Context())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, struct {
		Items []periodResponse `json:"items"`
	}{Items: toPeriodResponses(periods)})
}

// GET /v1/periods/{year}/{month}
func (s *Server) getMonthlyReport(w http.ResponseWriter, r *http.Request) {
	m := r.Context().Value(ctxKeyMonth).(ledger.Month)
	rep, err := s.svc.MonthlyReport(r.Context(), m)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, monthlyReportResponse{
		Period:  toPeriodResponse(rep.Period),
		Exists:  rep.Exists,
		Entries: toEntryResponses(rep.Entries),
	})
}

// GET /v1/periods/{year}/{month}/statement.pdf
func (s *Server) getStatementPDF(w http.ResponseWriter, r *http.Request) {
	m := r.Context().Value(ctxKeyMonth).(ledger.Month)
	rep, err := s.svc.MonthlyReport(r.Context(), m)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.StatementPDF(&buf, s.statementTitle, rep, s.now()); err != nil {
		s.writeServiceErr(w, r, fmt.Errorf("render statement: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, m))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// POST /v1/periods/{year}/{month}/close
func (s *Server) closeMonth(w http.ResponseWriter, r *http.Request) {
	m := r.Context().Value(ctxKeyMonth).(ledger.Month)
	p, err := s.svc.CloseMonth(r.Context(), m)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toPeriodResponse(p))
}
