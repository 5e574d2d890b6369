package memory

import (
	"testing"

	"foodpantry/internal/ledger/ledgertest"
)

func TestLedgerContract(t *testing.T) {
	ledgertest.Run(t, NewStore())
}
