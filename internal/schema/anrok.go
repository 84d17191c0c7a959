package schema

import "github.com/JonMunkholm/dataimport/internal/core"

// AnrokTransactions describes the Anrok tax transaction report. Its headers
// are human labels, so AutoMap matches them by label.
var AnrokTransactions = core.TableSchema{
	Key:   "anrok_transactions",
	Group: "Anrok",
	Label: "Transactions",
	Columns: []core.TargetColumn{
		{Key: "transaction_id", Label: "Transaction ID", Type: core.TypeString, Required: true, Unique: true},
		{Key: "customer_id", Label: "Customer ID", Type: core.TypeString},
		{Key: "customer_name", Label: "Customer name", Type: core.TypeString},
		{Key: "invoice_date", Label: "Invoice date", Type: core.TypeDate},
		{Key: "tax_date", Label: "Tax date", Type: core.TypeDate},
		{Key: "transaction_currency", Label: "Transaction currency", Type: core.TypeString, Transform: "upper",
			Rules: []core.ValidationRule{{Type: core.RulePattern, Value: `^[A-Z]{3}$`, Message: "must be a three letter currency code"}}},
		{Key: "sales_amount", Label: "Sales amount", Type: core.TypeNumber},
		{Key: "tax_amount", Label: "Tax amount", Type: core.TypeNumber},
		{Key: "invoice_amount", Label: "Invoice amount", Type: core.TypeNumber},
		{Key: "void", Label: "Void", Type: core.TypeBoolean, DefaultValue: false},
		{Key: "customer_address_region", Label: "Customer address region", Type: core.TypeString, Transform: "us_state"},
		{Key: "customer_country_code", Label: "Customer country code", Type: core.TypeString},
		{Key: "jurisdictions", Label: "Jurisdictions", Type: core.TypeString},
	},
}
