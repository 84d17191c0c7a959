package schema

import "github.com/JonMunkholm/dataimport/internal/core"

// SfdcCustomers describes the Salesforce account export.
var SfdcCustomers = core.TableSchema{
	Key:   "sfdc_customers",
	Group: "SFDC",
	Label: "Customers",
	Columns: []core.TargetColumn{
		{Key: "account_id_casesafe", Label: "Account ID (Casesafe)", Type: core.TypeString, Required: true, Unique: true,
			Rules: []core.ValidationRule{{Type: core.RulePattern, Value: `^[a-zA-Z0-9]{15}([a-zA-Z0-9]{3})?$`, Message: "must be a 15 or 18 character Salesforce id"}}},
		{Key: "account_name", Label: "Account Name", Type: core.TypeString, Required: true, Transform: "trim"},
		{Key: "last_activity", Label: "Last Activity", Type: core.TypeDate},
		{Key: "type", Label: "Type", Type: core.TypeString},
		{Key: "billing_state", Label: "Billing State/Province", Type: core.TypeString, Transform: "us_state"},
		{Key: "website", Label: "Website", Type: core.TypeURL},
	},
}

// SfdcPriceBook describes the Salesforce price book export.
var SfdcPriceBook = core.TableSchema{
	Key:   "sfdc_price_book",
	Group: "SFDC",
	Label: "Price Book",
	Columns: []core.TargetColumn{
		{Key: "price_book_name", Label: "Price Book Name", Type: core.TypeString, Required: true},
		{Key: "list_price", Label: "List Price", Type: core.TypeNumber,
			Rules: []core.ValidationRule{{Type: core.RuleMin, Value: 0}}},
		{Key: "product_name", Label: "Product Name", Type: core.TypeString},
		{Key: "product_code", Label: "Product Code", Type: core.TypeString, Transform: "upper",
			Rules: []core.ValidationRule{{Type: core.RuleCustom, Name: "noWhitespace"}}},
		{Key: "product_id_casesafe", Label: "Product ID (Casesafe)", Type: core.TypeString, Unique: true},
		{Key: "active_product", Label: "Active", Type: core.TypeBoolean, DefaultValue: true},
	},
}

// SfdcOppDetail describes the Salesforce opportunity product export.
var SfdcOppDetail = core.TableSchema{
	Key:   "sfdc_opp_detail",
	Group: "SFDC",
	Label: "Opportunity Detail",
	Columns: []core.TargetColumn{
		{Key: "opportunity_id", Label: "Opportunity ID", Type: core.TypeString, Required: true},
		{Key: "opportunity_product_casesafe_id", Label: "Opportunity Product Casesafe ID", Type: core.TypeString, Required: true, Unique: true},
		{Key: "opportunity_name", Label: "Opportunity Name", Type: core.TypeString},
		{Key: "account_name", Label: "Account Name", Type: core.TypeString},
		{Key: "close_date", Label: "Close Date", Type: core.TypeDate},
		{Key: "booked_date", Label: "Booked Date", Type: core.TypeDate},
		{Key: "fiscal_period", Label: "Fiscal Period", Type: core.TypeString},
		{Key: "contract_start_date", Label: "Contract Start Date", Type: core.TypeDate},
		{Key: "contract_end_date", Label: "Contract End Date", Type: core.TypeDate},
		{Key: "product_name", Label: "Product Name", Type: core.TypeString},
		{Key: "deployment_type", Label: "Deployment Type", Type: core.TypeString,
			Rules: []core.ValidationRule{{Type: core.RuleCustom, Name: "oneOf", Params: map[string]any{"values": []any{"Cloud", "On-Prem", "Hybrid"}}}}},
		{Key: "amount", Label: "Amount", Type: core.TypeNumber},
		{Key: "quantity", Label: "Quantity", Type: core.TypeNumber,
			Rules: []core.ValidationRule{{Type: core.RuleMin, Value: 0}}},
		{Key: "list_price", Label: "List Price", Type: core.TypeNumber},
		{Key: "sales_price", Label: "Sales Price", Type: core.TypeNumber},
		{Key: "total_price", Label: "Total Price", Type: core.TypeNumber},
		{Key: "term_in_months", Label: "Term in Months", Type: core.TypeNumber,
			Rules: []core.ValidationRule{{Type: core.RuleMin, Value: 0}, {Type: core.RuleMax, Value: 120}}},
		{Key: "product_code", Label: "Product Code", Type: core.TypeString},
	},
}
