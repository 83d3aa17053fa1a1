package postgres

import "github.com/tinoosan/daybook/internal/service/daybook"

var (
	_ daybook.Store  = (*Store)(nil)
	_ daybook.Reader = reader{}
	_ daybook.Tx     = (*writer)(nil)
)
