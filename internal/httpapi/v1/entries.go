package v1

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tinoosan/daybook/internal/ledger"
)

// postEntry handles POST /v1/entries. A replayed Idempotency-Key returns the
// original entry with 200 instead of 201.
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	in, ok := r.Context().Value(ctxKeyPostEntry).(ledger.Entry)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
		return
	}
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	saved, replayed, err := s.svc.AddEntry(r.Context(), in, key)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	if replayed {
		w.Header().Set(replayHeader, "true")
		toJSON(w, http.StatusOK, toEntryResponse(saved))
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponse(saved))
}

// listEntries handles GET /v1/entries.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	f, ok := r.Context().Value(ctxKeyEntryFilter).(ledger.EntryFilter)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated query missing", "internal")
		return
	}
	page, err := s.svc.ListEntries(r.Context(), f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, entryPageResponse{
		Items:    toEntryResponses(page.Items),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id := r.Context().Value(ctxKeyEntryID).(uuid.UUID)
	e, err := s.svc.GetEntry(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) patchEntry(w http.ResponseWriter, r *http.Request) {
	id := r.Context().Value(ctxKeyEntryID).(uuid.UUID)
	patch, ok := r.Context().Value(ctxKeyPatchEntry).(ledger.EntryPatch)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
		return
	}
	e, err := s.svc.UpdateEntry(r.Context(), id, patch)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.Context().Value(ctxKeyEntryID).(uuid.UUID)
	if err := s.svc.DeleteEntry(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
