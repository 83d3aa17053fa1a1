package v1

import (
	"net/http"
	"strings"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"
	maxIdempotencyKey = 255
)

// idempotencyKey reads the optional Idempotency-Key header. It writes a 400 and
// returns false when the key is unusable.
func idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > maxIdempotencyKey {
		badRequest(w, "Idempotency-Key too long")
		return "", false
	}
	return key, true
}
