package v1

import (
	"github.com/tinoosan/daybook/internal/storage/memory"
	"github.com/tinoosan/daybook/internal/storage/postgres"
	"github.com/tinoosan/daybook/internal/storage/sqlite"
)

// Compile-time assertions that every store can back the readiness probe.
var (
	_ ReadyChecker = (*memory.Store)(nil)
	_ ReadyChecker = (*sqlite.Store)(nil)
	_ ReadyChecker = (*postgres.Store)(nil)
)
