package v1

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinoosan/daybook/internal/service/daybook"
	"github.com/tinoosan/daybook/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type entryResp struct {
	ID           string            `json:"id"`
	Date         time.Time         `json:"date"`
	Description  string            `json:"description"`
	Kind         string            `json:"kind"`
	Currency     string            `json:"currency"`
	AmountMinor  int64             `json:"amount_minor"`
	Amount       string            `json:"amount"`
	BalanceMinor int64             `json:"balance_minor"`
	AccountHead  string            `json:"account_head"`
	VoucherType  string            `json:"voucher_type"`
	Metadata     map[string]string `json:"metadata"`
}

type periodResp struct {
	Period       string `json:"period"`
	OpeningMinor int64  `json:"opening_minor"`
	ClosingMinor int64  `json:"closing_minor"`
	CreditsMinor int64  `json:"credits_minor"`
	DebitsMinor  int64  `json:"debits_minor"`
	Closed       bool   `json:"closed"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	fixed := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	svc := daybook.New(store, daybook.WithLogger(testLogger()), daybook.WithClock(func() time.Time { return fixed }))
	return New(svc, store, testLogger(), WithClock(func() time.Time { return fixed })).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func entryBody(date, kind string, minor int64) map[string]any {
	head := "freight_income"
	if kind == "debit" {
		head = "fuel"
	}
	return map[string]any{
		"date":         date,
		"description":  "trip settlement",
		"kind":         kind,
		"amount_minor": minor,
		"account_head": head,
		"voucher_type": "trip",
	}
}

// decimalAmount swaps amount_minor for a decimal amount string.
func decimalAmount(v string) func(map[string]any) {
	return func(b map[string]any) {
		delete(b, "amount_minor")
		b["amount"] = v
	}
}

func TestPostEntry_ValidAndInvalid(t *testing.T) {
	h := setup(t)

	rec := do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-10", "credit", 150000), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	er := decode[entryResp](t, rec)
	if er.Currency != "INR" || er.BalanceMinor != 150000 || er.Amount != "1500.00" {
		t.Fatalf("unexpected response: %+v", er)
	}

	// decimal amount form
	body := entryBody("2024-01-11", "debit", 0)
	delete(body, "amount_minor")
	body["amount"] = "250.50"
	rec = do(t, h, http.MethodPost, "/v1/entries", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("decimal amount: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if er := decode[entryResp](t, rec); er.AmountMinor != 25050 || er.BalanceMinor != 124950 {
		t.Fatalf("unexpected decimal response: %+v", er)
	}

	cases := []struct {
		name   string
		mutate func(map[string]any)
		status int
		code   string
	}{
		{"zero amount", func(b map[string]any) { b["amount_minor"] = 0 }, http.StatusUnprocessableEntity, "invalid_amount"},
		{"bad kind", func(b map[string]any) { b["kind"] = "sideways" }, http.StatusUnprocessableEntity, "invalid_kind"},
		{"unknown voucher", func(b map[string]any) { b["voucher_type"] = "barter" }, http.StatusUnprocessableEntity, "invalid_voucher_type"},
		{"foreign currency", func(b map[string]any) { b["currency"] = "USD" }, http.StatusUnprocessableEntity, "invalid_amount"},
		{"both amounts", func(b map[string]any) { b["amount"] = "1.00" }, http.StatusUnprocessableEntity, "invalid_amount"},
		{"sub-paisa amount", decimalAmount("1.005"), http.StatusUnprocessableEntity, "invalid_amount"},
		{"amount out of range", decimalAmount("99999999999999999.99"), http.StatusUnprocessableEntity, "invalid_amount"},
		{"unknown field", func(b map[string]any) { b["user_id"] = "x" }, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := entryBody("2024-01-12", "credit", 100)
			tc.mutate(b)
			rec := do(t, h, http.MethodPost, "/v1/entries", b, nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if e := decode[errResp](t, rec); e.Code != tc.code {
				t.Fatalf("expected code %q, got %+v", tc.code, e)
			}
		})
	}
}

func TestPostEntry_RequiresJSON(t *testing.T) {
	h := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestPostEntry_IdempotentReplay(t *testing.T) {
	h := setup(t)
	hdr := map[string]string{"Idempotency-Key": "slip-42"}

	first := do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-05", "credit", 1000), hdr)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-05", "credit", 1000), hdr)
	if second.Code != http.StatusOK || second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected replay 200, got %d (%q)", second.Code, second.Header().Get("Idempotent-Replay"))
	}
	if decode[entryResp](t, first).ID != decode[entryResp](t, second).ID {
		t.Fatalf("replay returned a different entry")
	}

	list := do(t, h, http.MethodGet, "/v1/entries", nil, nil)
	page := decode[struct {
		Items []entryResp `json:"items"`
		Total int         `json:"total"`
	}](t, list)
	if page.Total != 1 {
		t.Fatalf("expected 1 entry after replay, got %d", page.Total)
	}

	long := map[string]string{"Idempotency-Key": strings.Repeat("k", 256)}
	if rec := do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-05", "credit", 1000), long); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized key, got %d", rec.Code)
	}
}

func TestEntries_BackdatedInsertCascades(t *testing.T) {
	h := setup(t)

	late := decode[entryResp](t, do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-20", "debit", 30000), nil))
	if late.BalanceMinor != -30000 {
		t.Fatalf("balance = %d, want -30000", late.BalanceMinor)
	}
	if rec := do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-02", "credit", 100000), nil); rec.Code != http.StatusCreated {
		t.Fatalf("backdated insert: %d %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/v1/entries/"+late.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if got := decode[entryResp](t, rec); got.BalanceMinor != 70000 {
		t.Fatalf("cascaded balance = %d, want 70000", got.BalanceMinor)
	}

	// move the early credit after the debit
	rec = do(t, h, http.MethodGet, "/v1/entries?from=2024-01-01&to=2024-01-02", nil, nil)
	page := decode[struct {
		Items []entryResp `json:"items"`
	}](t, rec)
	if len(page.Items) != 1 {
		t.Fatalf("filter returned %d items", len(page.Items))
	}
	early := page.Items[0]
	rec = do(t, h, http.MethodPatch, "/v1/entries/"+early.ID, map[string]any{"date": "2024-01-25"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[entryResp](t, rec); got.BalanceMinor != 70000 {
		t.Fatalf("moved entry balance = %d, want 70000", got.BalanceMinor)
	}
	if got := decode[entryResp](t, do(t, h, http.MethodGet, "/v1/entries/"+late.ID, nil, nil)); got.BalanceMinor != -30000 {
		t.Fatalf("debit balance after move = %d, want -30000", got.BalanceMinor)
	}

	if rec := do(t, h, http.MethodDelete, "/v1/entries/"+late.ID, nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if got := decode[entryResp](t, do(t, h, http.MethodGet, "/v1/entries/"+early.ID, nil, nil)); got.BalanceMinor != 100000 {
		t.Fatalf("balance after delete = %d, want 100000", got.BalanceMinor)
	}
	if rec := do(t, h, http.MethodGet, "/v1/entries/"+late.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/entries/not-a-uuid", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestPeriods_ReportAndClose(t *testing.T) {
	h := setup(t)

	rec := do(t, h, http.MethodPost, "/v1/opening-balance", map[string]any{"date": "2024-01-01", "amount": "5000.00", "notes": "b/f"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("opening: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/v1/opening-balance", map[string]any{"date": "2024-01-01", "amount_minor": 1}, nil)
	if rec.Code != http.StatusConflict || decode[errResp](t, rec).Code != "opening_balance_set" {
		t.Fatalf("second opening: %d %s", rec.Code, rec.Body.String())
	}

	do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-10", "credit", 20000), nil)
	do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-15", "debit", 5000), nil)

	rec = do(t, h, http.MethodGet, "/v1/periods/2024/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d %s", rec.Code, rec.Body.String())
	}
	rep := decode[struct {
		Period  periodResp  `json:"period"`
		Exists  bool        `json:"exists"`
		Entries []entryResp `json:"entries"`
	}](t, rec)
	if !rep.Exists || len(rep.Entries) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Period.OpeningMinor != 500000 || rep.Period.ClosingMinor != 515000 || rep.Period.CreditsMinor != 20000 || rep.Period.DebitsMinor != 5000 {
		t.Fatalf("unexpected period figures: %+v", rep.Period)
	}

	rec = do(t, h, http.MethodPost, "/v1/periods/2024/1/close", nil, nil)
	if rec.Code != http.StatusOK || !decode[periodResp](t, rec).Closed {
		t.Fatalf("close: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-20", "credit", 1), nil)
	if rec.Code != http.StatusConflict || decode[errResp](t, rec).Code != "period_closed" {
		t.Fatalf("write into closed month: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/periods/2024/2", nil, nil)
	if feb := decode[struct {
		Period periodResp `json:"period"`
	}](t, rec); feb.Period.OpeningMinor != 515000 {
		t.Fatalf("february opening = %d, want 515000", feb.Period.OpeningMinor)
	}

	rec = do(t, h, http.MethodGet, "/v1/periods", nil, nil)
	list := decode[struct {
		Items []periodResp `json:"items"`
	}](t, rec)
	if len(list.Items) < 2 || list.Items[0].Period != "2024-01" {
		t.Fatalf("unexpected periods: %+v", list.Items)
	}

	if rec := do(t, h, http.MethodGet, "/v1/periods/2024/13", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month 13, got %d", rec.Code)
	}
}

func TestStatementAndExport(t *testing.T) {
	h := setup(t)
	do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-02-03", "credit", 99000), nil)

	rec := do(t, h, http.MethodGet, "/v1/periods/2024/2/statement.pdf", nil, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("statement: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("statement body is not a PDF")
	}

	rec = do(t, h, http.MethodGet, "/v1/entries/export?format=csv", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "daybook-20240315.csv") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "990.00") {
		t.Fatalf("unexpected csv: %q", rec.Body.String())
	}

	if rec := do(t, h, http.MethodGet, "/v1/entries/export?format=xlsx", nil, nil); rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("xlsx export: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/entries/export?format=doc", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestRecalculate(t *testing.T) {
	h := setup(t)
	do(t, h, http.MethodPost, "/v1/entries", entryBody("2024-01-03", "credit", 1000), nil)

	if rec := do(t, h, http.MethodPost, "/v1/recalculate", nil, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without from, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/v1/recalculate?from=2024-01-01", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("recalculate: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[struct {
		TailMinor int64 `json:"tail_minor"`
		Rewritten int   `json:"rewritten"`
	}](t, rec)
	if res.TailMinor != 1000 {
		t.Fatalf("tail = %d, want 1000", res.TailMinor)
	}
}

func TestDictionaryAndHealth(t *testing.T) {
	h := setup(t)
	rec := do(t, h, http.MethodGet, "/v1/dictionary/account-heads?kind=credit", nil, nil)
	heads := decode[struct {
		Items []struct {
			Code string `json:"code"`
			Kind string `json:"kind"`
		} `json:"items"`
	}](t, rec)
	if len(heads.Items) == 0 {
		t.Fatalf("no credit heads")
	}
	for _, it := range heads.Items {
		if it.Kind != "credit" {
			t.Fatalf("kind filter leaked %+v", it)
		}
	}
	if rec := do(t, h, http.MethodGet, "/v1/dictionary/voucher-types", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("voucher types: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

func TestRecalculate_TimedWithServerClock(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	store := memory.New()
	svc := daybook.New(store, daybook.WithLogger(testLogger()))
	tick := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(1500 * time.Millisecond)
		return tick
	}
	h := New(svc, store, logger, WithClock(clock)).Handler()

	rec := do(t, h, http.MethodPost, "/v1/recalculate?from=2024-01-01", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("recalculate: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(logs.String(), `"duration":"1.5s"`) {
		t.Fatalf("duration not taken from the server clock: %s", logs.String())
	}
}
