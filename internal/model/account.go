package model

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Account is one entry of the school's chart of accounts.
type Account struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	ParentID    int         `json:"parentId,omitempty"` // 0 = top-level
	TaxLine     string      `json:"taxLine,omitempty"`
	Description string      `json:"description,omitempty"`
}
