package ledger

import (
	"fmt"
	"sort"
)

// ChartEntry is a predefined account seeded into a new ledger.
type ChartEntry struct {
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	ParentCode  string      `json:"parent_code,omitempty"`
	Description string      `json:"description"`
}

// DefaultChart is the minimal chart of accounts created on first open.
// Parents are listed before their children.
var DefaultChart = []ChartEntry{
	// Assets (1xxx)
	{Code: "1000", Name: "Cash and Cash Equivalents", Type: AccountTypeAsset, Description: "Cash on hand and at bank"},
	{Code: "1010", Name: "Cash", Type: AccountTypeAsset, ParentCode: "1000", Description: "Physical cash and petty cash"},
	{Code: "1020", Name: "Bank", Type: AccountTypeAsset, ParentCode: "1000", Description: "Operating bank accounts"},
	{Code: "1100", Name: "Accounts Receivable", Type: AccountTypeAsset, Description: "Amounts owed to the entity by customers"},

	// Liabilities (2xxx)
	{Code: "2000", Name: "Accounts Payable", Type: AccountTypeLiability, Description: "Amounts owed to suppliers"},

	// Equity (3xxx)
	{Code: "3000", Name: "Owner's Equity", Type: AccountTypeEquity, Description: "Owner's capital contributions"},
	{Code: "3100", Name: "Retained Earnings", Type: AccountTypeEquity, Description: "Accumulated profits retained in the entity"},

	// Revenue (4xxx)
	{Code: "4000", Name: "Revenue", Type: AccountTypeRevenue, Description: "Operating income"},
	{Code: "4010", Name: "Sales Revenue", Type: AccountTypeRevenue, ParentCode: "4000", Description: "Income from goods sold"},
	{Code: "4020", Name: "Service Revenue", Type: AccountTypeRevenue, ParentCode: "4000", Description: "Income from services rendered"},

	// Expenses (5xxx)
	{Code: "5000", Name: "Operating Expenses", Type: AccountTypeExpense, Description: "General operating costs"},
	{Code: "5100", Name: "Cost of Goods Sold", Type: AccountTypeExpense, Description: "Direct costs of goods sold"},
}

// Chart is an arena of accounts keyed by id. Parent/child links are ids
// resolved through the arena, never object references.
type Chart struct {
	accounts map[AccountID]*Account
	byCode   map[string]AccountID
	children map[AccountID][]AccountID
	roots    []AccountID
}

// NewChart indexes accounts into a tree. Accounts whose parent is missing
// are treated as roots; a parent cycle is an error.
func NewChart(accounts []Account) (*Chart, error) {
	c := &Chart{
		accounts: make(map[AccountID]*Account, len(accounts)),
		byCode:   make(map[string]AccountID, len(accounts)),
		children: make(map[AccountID][]AccountID),
	}
	for i := range accounts {
		a := accounts[i]
		c.accounts[a.ID] = &a
		c.byCode[a.Code] = a.ID
	}
	for _, a := range c.accounts {
		if _, ok := c.accounts[a.ParentID]; a.ParentID != "" && ok {
			c.children[a.ParentID] = append(c.children[a.ParentID], a.ID)
		} else {
			c.roots = append(c.roots, a.ID)
		}
	}
	c.sortIDs(c.roots)
	for id := range c.children {
		c.sortIDs(c.children[id])
	}

	seen := 0
	if err := c.Walk(func(Account, int) error { seen++; return nil }); err != nil {
		return nil, err
	}
	if seen != len(c.accounts) {
		return nil, fmt.Errorf("%w: parent cycle in chart of accounts", ErrInvalidParent)
	}
	return c, nil
}

func (c *Chart) sortIDs(ids []AccountID) {
	sort.Slice(ids, func(i, j int) bool {
		return c.accounts[ids[i]].Code < c.accounts[ids[j]].Code
	})
}

func (c *Chart) Len() int { return len(c.accounts) }

func (c *Chart) Lookup(id AccountID) (Account, bool) {
	a, ok := c.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

func (c *Chart) ByCode(code string) (Account, bool) {
	id, ok := c.byCode[code]
	if !ok {
		return Account{}, false
	}
	return c.Lookup(id)
}

// Roots returns top-level accounts ordered by code.
func (c *Chart) Roots() []Account {
	return c.resolve(c.roots)
}

// Children returns the direct children of id ordered by code.
func (c *Chart) Children(id AccountID) []Account {
	return c.resolve(c.children[id])
}

func (c *Chart) resolve(ids []AccountID) []Account {
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, *c.accounts[id])
	}
	return out
}

// Walk visits the tree depth-first in code order. Returning an error from
// fn stops the walk.
func (c *Chart) Walk(fn func(acct Account, depth int) error) error {
	var visit func(id AccountID, depth int) error
	visit = func(id AccountID, depth int) error {
		if err := fn(*c.accounts[id], depth); err != nil {
			return err
		}
		for _, child := range c.children[id] {
			if err := visit(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range c.roots {
		if err := visit(id, 0); err != nil {
			return err
		}
	}
	return nil
}

// Ancestors returns the path from the root down to id's parent.
func (c *Chart) Ancestors(id AccountID) []Account {
	var path []Account
	seen := map[AccountID]bool{id: true}
	for cur, ok := c.accounts[id]; ok && cur.ParentID != ""; cur, ok = c.accounts[cur.ParentID] {
		if seen[cur.ParentID] {
			break
		}
		seen[cur.ParentID] = true
		if p, ok := c.accounts[cur.ParentID]; ok {
			path = append([]Account{*p}, path...)
		}
	}
	return path
}
