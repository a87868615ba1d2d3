package domain

import "github.com/shopspring/decimal"

func init() {
	// SPA ожидает в JSON числа, а не строки
	decimal.MarshalJSONWithoutQuotes = true
}
