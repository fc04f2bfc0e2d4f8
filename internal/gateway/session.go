package gateway

import (
	"github.com/shopspring/decimal"
)

// Session is one admitted connection
type Session struct {
	ConnID   string
	Identity string
	Address  string
	// Balance is the snapshot used for the admission decision, in base units.
	// Only meaningful when BalanceChecked is set.
	Balance        decimal.Decimal
	BalanceChecked bool
}
