package store

import "github.com/shopspring/decimal"

// UseNumericMoney makes decimal amounts encode as plain JSON numbers, the
// format of the legacy document, so money fields stay numerically
// comparable in criteria. It flips a process-wide flag of the decimal
// package and is called once from main before the first document is written.
func UseNumericMoney() {
	decimal.MarshalJSONWithoutQuotes = true
}
