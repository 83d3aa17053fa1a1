package v1

import (
	"net/http"

	"github.com/tinoosan/daybook/internal/dictionary"
	"github.com/tinoosan/daybook/internal/ledger"
)

// GET /v1/dictionary/voucher-types
func (s *Server) getVoucherTypes(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, struct {
		Items []dictionary.VoucherTypeDef `json:"items"`
	}{Items: dictionary.VoucherTypes()})
}

// GET /v1/dictionary/account-heads?kind=
func (s *Server) getAccountHeads(w http.ResponseWriter, r *http.Request) {
	var kind *ledger.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, ok := ledger.ParseKind(raw)
		if !ok {
			badRequest(w, "invalid kind")
			return
		}
		kind = &k
	}
	toJSON(w, http.StatusOK, struct {
		Items []dictionary.AccountHeadDef `json:"items"`
	}{Items: dictionary.AccountHeads(kind)})
}
