package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalBalancePolarity(t *testing.T) {
	assert.Equal(t, SideDebit, AccountTypeAsset.NormalBalance())
	assert.Equal(t, SideDebit, AccountTypeExpense.NormalBalance())
	assert.Equal(t, SideCredit, AccountTypeLiability.NormalBalance())
	assert.Equal(t, SideCredit, AccountTypeEquity.NormalBalance())
	assert.Equal(t, SideCredit, AccountTypeRevenue.NormalBalance())

	assert.Equal(t, int64(1000), AccountTypeAsset.Delta(1000, 0))
	assert.Equal(t, int64(-1000), AccountTypeAsset.Delta(0, 1000))
	assert.Equal(t, int64(1000), AccountTypeRevenue.Delta(0, 1000))
	assert.Equal(t, int64(-250), AccountTypeLiability.Delta(250, 0))
}

func TestParseAccountType(t *testing.T) {
	for in, want := range map[string]AccountType{
		"ASSET":       AccountTypeAsset,
		"assets":      AccountTypeAsset,
		"Liabilities": AccountTypeLiability,
		"equity":      AccountTypeEquity,
		"revenue":     AccountTypeRevenue,
		"expenses":    AccountTypeExpense,
	} {
		got, err := ParseAccountType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAccountType("income")
	assert.ErrorIs(t, err, ErrInvalidAccountType)
}

func TestSuggestedType(t *testing.T) {
	got, ok := SuggestedType("1010")
	assert.True(t, ok)
	assert.Equal(t, AccountTypeAsset, got)

	got, ok = SuggestedType("5100-02")
	assert.True(t, ok)
	assert.Equal(t, AccountTypeExpense, got)

	_, ok = SuggestedType("CASH")
	assert.False(t, ok)
	_, ok = SuggestedType("9000")
	assert.False(t, ok)
}

func TestAccountValidate(t *testing.T) {
	acct := Account{ID: "a1", Code: "1010", Name: "Cash", Type: AccountTypeAsset}
	require.NoError(t, acct.Validate())

	bad := acct
	bad.Code = "has space"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAccountCode)

	bad = acct
	bad.Name = "  "
	assert.ErrorIs(t, bad.Validate(), ErrEmptyAccountName)

	bad = acct
	bad.Type = "asset"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAccountType)

	bad = acct
	bad.ParentID = "a1"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParent)

	// A child's type need not match its parent's.
	child := Account{ID: "a2", Code: "1011", Name: "Contra", Type: AccountTypeLiability, ParentID: "a1"}
	assert.NoError(t, child.Validate())
}

func TestChartTree(t *testing.T) {
	accounts := []Account{
		{ID: "c", Code: "1010", Name: "Cash", Type: AccountTypeAsset, ParentID: "root"},
		{ID: "root", Code: "1000", Name: "Cash & Equivalents", Type: AccountTypeAsset},
		{ID: "b", Code: "1020", Name: "Bank", Type: AccountTypeAsset, ParentID: "root"},
		{ID: "sub", Code: "1021", Name: "Bank USD", Type: AccountTypeAsset, ParentID: "b"},
		{ID: "rev", Code: "4000", Name: "Revenue", Type: AccountTypeRevenue},
		{ID: "orphan", Code: "2000", Name: "Payables", Type: AccountTypeLiability, ParentID: "missing"},
	}
	chart, err := NewChart(accounts)
	require.NoError(t, err)
	assert.Equal(t, 6, chart.Len())

	var roots []string
	for _, a := range chart.Roots() {
		roots = append(roots, a.Code)
	}
	assert.Equal(t, []string{"1000", "2000", "4000"}, roots)

	children := chart.Children("root")
	require.Len(t, children, 2)
	assert.Equal(t, "1010", children[0].Code)
	assert.Equal(t, "1020", children[1].Code)

	var walked []string
	var depths []int
	require.NoError(t, chart.Walk(func(a Account, depth int) error {
		walked = append(walked, a.Code)
		depths = append(depths, depth)
		return nil
	}))
	assert.Equal(t, []string{"1000", "1010", "1020", "1021", "2000", "4000"}, walked)
	assert.Equal(t, []int{0, 1, 1, 2, 0, 0}, depths)

	acct, ok := chart.ByCode("1021")
	require.True(t, ok)
	assert.Equal(t, AccountID("sub"), acct.ID)

	var path []string
	for _, a := range chart.Ancestors("sub") {
		path = append(path, a.Code)
	}
	assert.Equal(t, []string{"1000", "1020"}, path)
}

func TestChartRejectsCycle(t *testing.T) {
	_, err := NewChart([]Account{
		{ID: "a", Code: "1", Name: "A", Type: AccountTypeAsset, ParentID: "b"},
		{ID: "b", Code: "2", Name: "B", Type: AccountTypeAsset, ParentID: "a"},
	})
	assert.ErrorIs(t, err, ErrInvalidParent)
}
