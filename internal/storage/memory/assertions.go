package memory

import "github.com/tinoosan/daybook/internal/service/daybook"

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ daybook.Store  = (*Store)(nil)
	_ daybook.Reader = reader{}
	_ daybook.Tx     = (*tx)(nil)
)
