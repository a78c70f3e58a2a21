package accounts

import "github.com/dmitriyabr/duma-erp-sub003/internal/model"

// Well-known account IDs referenced by seed data and tests.
const (
	AccountBank          = 1010
	AccountReceivables   = 1100
	AccountInventory     = 1200
	AccountPayables      = 2010
	AccountTuitionFees   = 4010
	AccountBoardingFees  = 4020
	AccountUniformSales  = 4030
	AccountBookSales     = 4040
	AccountStationery    = 5010
	AccountTravel        = 5020
	AccountMeals         = 5030
	AccountMaintenance   = 5040
	AccountSalaries      = 5050
	AccountCostOfGoods   = 5060
	AccountMiscellaneous = 5090
)

// DefaultChart returns the chart of accounts seeded into a new school database.
func DefaultChart() []model.Account {
	return []model.Account{
		{ID: AccountBank, Name: "School Bank Account", Type: model.AccountTypeAsset, Description: "Main operating account"},
		{ID: 1020, Name: "Petty Cash", Type: model.AccountTypeAsset, ParentID: AccountBank, Description: "Cash float held at the office"},
		{ID: AccountReceivables, Name: "Student Receivables", Type: model.AccountTypeAsset, Description: "Invoiced fees not yet collected"},
		{ID: AccountInventory, Name: "Inventory", Type: model.AccountTypeAsset, Description: "Uniforms, books and stationery on hand"},
		{ID: AccountPayables, Name: "Supplier Payables", Type: model.AccountTypeLiability, Description: "Received goods not yet paid"},
		{ID: 2020, Name: "Staff Claims Payable", Type: model.AccountTypeLiability, Description: "Approved claims awaiting payout"},
		{ID: 3010, Name: "Accumulated Fund", Type: model.AccountTypeEquity},
		{ID: AccountTuitionFees, Name: "Tuition Fees", Type: model.AccountTypeRevenue},
		{ID: AccountBoardingFees, Name: "Boarding Fees", Type: model.AccountTypeRevenue},
		{ID: AccountUniformSales, Name: "Uniform Sales", Type: model.AccountTypeRevenue},
		{ID: AccountBookSales, Name: "Book & Stationery Sales", Type: model.AccountTypeRevenue},
		{ID: 4090, Name: "Other Income", Type: model.AccountTypeRevenue, Description: "Activity fees, transport, events"},
		{ID: AccountStationery, Name: "Stationery & Office Supplies", Type: model.AccountTypeExpense},
		{ID: AccountTravel, Name: "Travel", Type: model.AccountTypeExpense, Description: "Staff travel and transport"},
		{ID: AccountMeals, Name: "Meals & Catering", Type: model.AccountTypeExpense},
		{ID: AccountMaintenance, Name: "Repairs & Maintenance", Type: model.AccountTypeExpense},
		{ID: AccountSalaries, Name: "Salaries & Compensation", Type: model.AccountTypeExpense},
		{ID: AccountCostOfGoods, Name: "Cost of Goods Sold", Type: model.AccountTypeExpense, Description: "Cost of uniforms and books issued"},
		{ID: AccountMiscellaneous, Name: "Miscellaneous Expense", Type: model.AccountTypeExpense},
	}
}
