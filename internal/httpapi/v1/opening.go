package v1

import (
	"net/http"

	"github.com/tinoosan/daybook/internal/errs"
)

// POST /v1/opening-balance
func (s *Server) postOpeningBalance(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyOpeningBalance).(openingBalanceRequest)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
		return
	}
	amt, err := resolveAmount("amount", req.Currency, s.svc.Currency(), req.AmountMinor, req.Amount)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	ob, err := s.svc.SetOpeningBalance(r.Context(), amt, req.Date.Time, req.Notes)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toOpeningBalanceResponse(ob))
}

// GET /v1/opening-balance
func (s *Server) getOpeningBalance(w http.ResponseWriter, r *http.Request) {
	ob, err := s.svc.OpeningBalance(r.Context())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toOpeningBalanceResponse(ob))
}

// POST /v1/recalculate?from=
func (s *Server) recalculate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("from")
	if raw == "" {
		s.writeServiceErr(w, r, errs.Invalid("from", "required"))
		return
	}
	from, _, err := parseAPITime(raw)
	if err != nil {
		badRequest(w, "invalid from: "+err.Error())
		return
	}
	start := s.now()
	res, err := s.svc.Recalculate(r.Context(), from)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	s.log.Info("manual recalculation", "from", res.From, "rewritten", res.Rewritten, "months", len(res.Months), "duration", s.now().Sub(start).String())
	toJSON(w, http.StatusOK, toRecalcResponse(res))
}
