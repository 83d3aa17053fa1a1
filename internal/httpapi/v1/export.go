package v1

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/tinoosan/daybook/internal/export"
	"github.com/tinoosan/daybook/internal/ledger"
)

// GET /v1/entries/export?format=csv|xlsx plus the listing filters, unpaged.
func (s *Server) exportEntries(w http.ResponseWriter, r *http.Request) {
	f, ok := r.Context().Value(ctxKeyEntryFilter).(ledger.EntryFilter)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated query missing", "internal")
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	entries, err := s.svc.ExportEntries(r.Context(), f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, entries); err != nil {
		s.writeServiceErr(w, r, fmt.Errorf("render export: %w", err))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="daybook-%s.%s"`, s.now().UTC().Format("20060102"), format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
