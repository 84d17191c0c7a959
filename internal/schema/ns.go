package schema

import "github.com/JonMunkholm/dataimport/internal/core"

// NsCustomers describes the NetSuite customer saved search.
var NsCustomers = core.TableSchema{
	Key:   "ns_customers",
	Group: "NetSuite",
	Label: "Customers",
	Columns: []core.TargetColumn{
		{Key: "internal_id", Label: "Internal ID", Type: core.TypeString, Required: true, Unique: true},
		{Key: "salesforce_id_io", Label: "Salesforce ID (IO)", Type: core.TypeString},
		{Key: "name", Label: "Name", Type: core.TypeString, Required: true},
		{Key: "company_name", Label: "Company Name", Type: core.TypeString},
		{Key: "email", Label: "Email", Type: core.TypeEmail},
		{Key: "balance", Label: "Balance", Type: core.TypeNumber},
		{Key: "unbilled_orders", Label: "Unbilled Orders", Type: core.TypeNumber},
		{Key: "overdue_balance", Label: "Overdue Balance", Type: core.TypeNumber},
		{Key: "days_overdue", Label: "Days Overdue", Type: core.TypeNumber,
			Rules: []core.ValidationRule{{Type: core.RuleMin, Value: 0}}},
	},
}

// NsInvoiceDetail describes the NetSuite invoice line export.
var NsInvoiceDetail = core.TableSchema{
	Key:   "ns_invoice_detail",
	Group: "NetSuite",
	Label: "Invoice Detail",
	Columns: []core.TargetColumn{
		{Key: "document_number", Label: "Document Number", Type: core.TypeString, Required: true},
		{Key: "sfdc_opp_id", Label: "SFDC Opp ID", Type: core.TypeString},
		{Key: "sfdc_opp_line_id", Label: "SFDC Opp Line ID", Type: core.TypeString},
		{Key: "customer_internal_id", Label: "Customer Internal ID", Type: core.TypeString, Required: true},
		{Key: "type", Label: "Type", Type: core.TypeString, DefaultValue: "Invoice"},
		{Key: "date", Label: "Date", Type: core.TypeDate, Required: true},
		{Key: "date_due", Label: "Date Due", Type: core.TypeDate},
		{Key: "memo", Label: "Memo", Type: core.TypeString,
			Rules: []core.ValidationRule{{Type: core.RuleMax, Value: 999}}},
		{Key: "item", Label: "Item", Type: core.TypeString},
		{Key: "qty", Label: "Quantity", Type: core.TypeNumber},
		{Key: "unit_price", Label: "Unit Price", Type: core.TypeNumber},
		{Key: "amount", Label: "Amount", Type: core.TypeNumber},
		{Key: "shipping_address_state", Label: "Shipping State", Type: core.TypeString, Transform: "us_state"},
		{Key: "shipping_address_country", Label: "Shipping Country", Type: core.TypeString},
	},
}
