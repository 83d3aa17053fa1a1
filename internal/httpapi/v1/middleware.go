package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tinoosan/daybook/internal/ledger"
)

type ctxKey string

const (
	ctxKeyPostEntry      ctxKey = "validatedPostEntry"
	ctxKeyPatchEntry     ctxKey = "validatedPatchEntry"
	ctxKeyEntryID        ctxKey = "validatedEntryID"
	ctxKeyEntryFilter    ctxKey = "validatedEntryFilter"
	ctxKeyMonth          ctxKey = "validatedMonth"
	ctxKeyOpeningBalance ctxKey = "validatedOpeningBalance"
)

// decodeJSON enforces the content type and rejects unknown fields. It writes
// the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// validatePostEntry decodes POST /v1/entries and stores the domain entry in the
// request context. Field rules are enforced by the service.
func (s *Server) validatePostEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postEntryRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			e, err := toEntryDomain(req, s.svc.Currency())
			if err != nil {
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostEntry, e)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) validatePatchEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req patchEntryRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			p, err := toPatchDomain(req, s.svc.Currency())
			if err != nil {
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPatchEntry, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateEntryID parses the {id} path parameter.
func (s *Server) validateEntryID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				badRequest(w, "invalid id")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyEntryID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateEntryFilter parses listing/export query params. A date-only "to"
// includes that whole day.
func (s *Server) validateEntryFilter(paged bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var f ledger.EntryFilter
			if raw := q.Get("from"); raw != "" {
				t, _, err := parseAPITime(raw)
				if err != nil {
					badRequest(w, "invalid from: "+err.Error())
					return
				}
				f.From = &t
			}
			if raw := q.Get("to"); raw != "" {
				t, wholeDay, err := parseAPITime(raw)
				if err != nil {
					badRequest(w, "invalid to: "+err.Error())
					return
				}
				if wholeDay {
					t = t.AddDate(0, 0, 1)
				}
				f.To = &t
			}
			if raw := q.Get("kind"); raw != "" {
				k, ok := ledger.ParseKind(raw)
				if !ok {
					badRequest(w, "invalid kind")
					return
				}
				f.Kind = &k
			}
			f.AccountHead = q.Get("account_head")
			f.VoucherType = q.Get("voucher_type")
			f.Query = q.Get("q")
			if paged {
				var ok bool
				if f.Page, ok = intParam(w, q.Get("page"), "page"); !ok {
					return
				}
				if f.PageSize, ok = intParam(w, q.Get("page_size"), "page_size"); !ok {
					return
				}
			}
			ctx := context.WithValue(r.Context(), ctxKeyEntryFilter, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		badRequest(w, "invalid "+name)
		return 0, false
	}
	return n, true
}

// validateMonth parses the {year}/{month} path parameters.
func (s *Server) validateMonth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			year, err := strconv.Atoi(chi.URLParam(r, "year"))
			if err != nil {
				badRequest(w, "invalid year")
				return
			}
			month, err := strconv.Atoi(chi.URLParam(r, "month"))
			if err != nil {
				badRequest(w, "invalid month")
				return
			}
			m, err := ledger.NewMonth(year, month)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyMonth, m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) validateOpeningBalance() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req openingBalanceRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyOpeningBalance, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
