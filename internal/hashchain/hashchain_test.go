package hashchain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memChain struct {
	txns    []*ledger.Transaction
	tipSeq  int64
	tipHash string
}

func (m *memChain) WalkChain(ctx context.Context, fn func(*ledger.Transaction) error) error {
	for _, t := range m.txns {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func (m *memChain) ChainTip(context.Context) (int64, string, error) {
	return m.tipSeq, m.tipHash, nil
}

func sampleTxn(n int) *ledger.Transaction {
	return &ledger.Transaction{
		ID:              ledger.TransactionID(fmt.Sprintf("id-%d", n)),
		Number:          fmt.Sprintf("TXN%03d", n),
		Type:            "PAYMENT",
		Description:     "cash sale",
		TotalAmount:     1000,
		Currency:        "INR",
		TransactionDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		PostingDate:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:          ledger.StatusPosted,
		SourceSystem:    "pos",
		CreatedBy:       "alice",
		Entries: []ledger.JournalEntry{
			{AccountID: "cash", DebitAmount: 1000, Sequence: 1, Description: "till"},
			{AccountID: "revenue", CreditAmount: 1000, Sequence: 2},
		},
	}
}

// buildChain seals n transactions the way posting does.
func buildChain(t *testing.T, h *Hasher, n int) *memChain {
	t.Helper()
	return buildChainWith(t, h, n, nil)
}

// buildChainWith lets edit shape each transaction before it is sealed.
func buildChainWith(t *testing.T, h *Hasher, n int, edit func(i int, txn *ledger.Transaction)) *memChain {
	t.Helper()
	chain := &memChain{}
	prev := ""
	for i := 1; i <= n; i++ {
		txn := sampleTxn(i)
		if edit != nil {
			edit(i, txn)
		}
		txn.PreviousHash = prev
		txn.ChainSeq = int64(i)
		h.Seal(txn)
		prev = txn.HashValue
		chain.txns = append(chain.txns, txn)
	}
	chain.tipSeq = int64(n)
	chain.tipHash = prev
	return chain
}

func TestHashesAreDeterministic(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)

	a, b := sampleTxn(1), sampleTxn(1)
	h.Seal(a)
	h.Seal(b)
	assert.Equal(t, a.HashValue, b.HashValue)
	assert.Len(t, a.HashValue, 64)
	assert.Equal(t, a.Entries[0].HashValue, b.Entries[0].HashValue)

	// BalanceAfter is not part of the entry hash.
	bal := int64(1000)
	b.Entries[0].BalanceAfter = &bal
	assert.Equal(t, a.Entries[0].HashValue, h.EntryHash(&b.Entries[0]))
}

func TestHashIsSensitiveToEveryField(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)
	base := sampleTxn(1)
	h.Seal(base)

	mutations := map[string]func(*ledger.Transaction){
		"number":       func(t *ledger.Transaction) { t.Number = "TXN999" },
		"type":         func(t *ledger.Transaction) { t.Type = "REFUND" },
		"description":  func(t *ledger.Transaction) { t.Description = "cash sal" },
		"total":        func(t *ledger.Transaction) { t.TotalAmount = 1001 },
		"currency":     func(t *ledger.Transaction) { t.Currency = "USD" },
		"txn date":     func(t *ledger.Transaction) { t.TransactionDate = t.TransactionDate.AddDate(0, 0, 1) },
		"posting date": func(t *ledger.Transaction) { t.PostingDate = t.PostingDate.AddDate(0, 0, 1) },
		"source":       func(t *ledger.Transaction) { t.SourceSystem = "web" },
		"creator":      func(t *ledger.Transaction) { t.CreatedBy = "bob" },
		"reference":    func(t *ledger.Transaction) { t.ReferenceID = "x" },
		"previous":     func(t *ledger.Transaction) { t.PreviousHash = "abc" },
		"posted at": func(t *ledger.Transaction) {
			at := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
			t.PostedAt = &at
		},
		"entry amount": func(t *ledger.Transaction) { t.Entries[0].DebitAmount = 999 },
		"entry acct":   func(t *ledger.Transaction) { t.Entries[1].AccountID = "other" },
		"entry order": func(t *ledger.Transaction) {
			t.Entries[0], t.Entries[1] = t.Entries[1], t.Entries[0]
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			txn := sampleTxn(1)
			mutate(txn)
			h.Seal(txn)
			assert.NotEqual(t, base.HashValue, txn.HashValue)
		})
	}
}

func TestFieldBoundariesAreUnambiguous(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)

	a := sampleTxn(1)
	a.Type, a.Description = "PAY", "MENTx"
	b := sampleTxn(1)
	b.Type, b.Description = "PAYMENT", "x"
	h.Seal(a)
	h.Seal(b)
	assert.NotEqual(t, a.HashValue, b.HashValue)
}

func TestAlgorithmsDiffer(t *testing.T) {
	s2, err := New(SHA256)
	require.NoError(t, err)
	s3, err := New(SHA3_256)
	require.NoError(t, err)

	assert.NotEqual(t, s2.TransactionHash(sampleTxn(1)), s3.TransactionHash(sampleTxn(1)))

	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, alg)
	_, err = ParseAlgorithm("md5")
	assert.Error(t, err)
	_, err = New("md5")
	assert.Error(t, err)
}

func TestVerifyIntactChain(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)
	chain := buildChain(t, h, 5)

	report, err := h.Verify(context.Background(), chain)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(5), report.Checked)
	assert.Equal(t, chain.tipHash, report.TipHash)
	assert.NoError(t, report.Err())
	assert.Empty(t, chain.txns[0].PreviousHash)
	assert.Equal(t, chain.txns[0].HashValue, chain.txns[1].PreviousHash)
}

func TestVerifyEmptyChain(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)

	report, err := h.Verify(context.Background(), &memChain{})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Zero(t, report.Checked)
}

func TestVerifyDetectsTampering(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)

	tests := []struct {
		name   string
		tamper func(c *memChain)
		index  int64
		reason string
	}{
		{
			name:   "description edited",
			tamper: func(c *memChain) { c.txns[2].Description = "edited" },
			index:  2,
			reason: ReasonTransactionHash,
		},
		{
			name:   "entry amount edited",
			tamper: func(c *memChain) { c.txns[1].Entries[0].DebitAmount = 1 },
			index:  1,
			reason: ReasonEntryHash,
		},
		{
			name: "transaction removed",
			tamper: func(c *memChain) {
				c.txns = append(c.txns[:1], c.txns[2:]...)
			},
			index:  1,
			reason: ReasonSequenceGap,
		},
		{
			name: "hash rewritten without relinking",
			tamper: func(c *memChain) {
				c.txns[0].Description = "edited"
				h.Seal(c.txns[0])
			},
			index:  1,
			reason: ReasonBrokenLink,
		},
		{
			name:   "status flipped",
			tamper: func(c *memChain) { c.txns[3].Status = ledger.StatusPending },
			index:  3,
			reason: ReasonNotApplied,
		},
		{
			name:   "last transaction dropped",
			tamper: func(c *memChain) { c.txns = c.txns[:4] },
			index:  4,
			reason: ReasonTipMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := buildChain(t, h, 5)
			tt.tamper(chain)

			report, err := h.Verify(context.Background(), chain)
			require.NoError(t, err)
			assert.False(t, report.Valid)
			require.NotNil(t, report.Mismatch)
			assert.Equal(t, tt.index, report.Mismatch.Index)
			assert.Contains(t, report.Mismatch.Reason, tt.reason)
			assert.ErrorIs(t, report.Err(), ledger.ErrIntegrityViolation)
		})
	}
}

// reverseThird marks transaction 3 REVERSED and makes transaction 5 its
// posted reversal.
func reverseThird(i int, txn *ledger.Transaction) {
	switch i {
	case 3:
		txn.Status = ledger.StatusReversed
	case 5:
		txn.Type = ledger.TypeReversal
		txn.ReferenceID = "id-3"
	}
}

func TestVerifyReversalLinks(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)

	t.Run("reversed with reversal", func(t *testing.T) {
		chain := buildChainWith(t, h, 5, reverseThird)
		report, err := h.Verify(context.Background(), chain)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.EqualValues(t, 5, report.Checked)
	})

	t.Run("status flipped to reversed", func(t *testing.T) {
		chain := buildChain(t, h, 5)
		chain.txns[1].Status = ledger.StatusReversed

		report, err := h.Verify(context.Background(), chain)
		require.NoError(t, err)
		assert.False(t, report.Valid)
		require.NotNil(t, report.Mismatch)
		assert.Equal(t, ReasonMissingReversal, report.Mismatch.Reason)
		assert.EqualValues(t, 1, report.Mismatch.Index)
		assert.Equal(t, ledger.TransactionID("id-2"), report.Mismatch.TransactionID)
	})

	t.Run("reversal restored to posted", func(t *testing.T) {
		chain := buildChainWith(t, h, 5, reverseThird)
		chain.txns[2].Status = ledger.StatusPosted

		report, err := h.Verify(context.Background(), chain)
		require.NoError(t, err)
		assert.False(t, report.Valid)
		assert.Equal(t, ReasonOrphanReversal, report.Mismatch.Reason)
		assert.EqualValues(t, 4, report.Mismatch.Index)
	})
}

func TestFindBrokenListsEveryMismatch(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)
	chain := buildChain(t, h, 5)
	chain.txns[1].Description = "edited"
	chain.txns[3].Entries[0].DebitAmount = 1

	report, err := h.FindBroken(context.Background(), chain)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.EqualValues(t, 5, report.Checked)
	require.Len(t, report.Mismatches, 2)
	assert.Equal(t, ReasonTransactionHash, report.Mismatches[0].Reason)
	assert.EqualValues(t, 1, report.Mismatches[0].Index)
	assert.Contains(t, report.Mismatches[1].Reason, ReasonEntryHash)
	assert.EqualValues(t, 3, report.Mismatches[1].Index)
	assert.Equal(t, report.Mismatches[0], *report.Mismatch)
	assert.ErrorIs(t, report.Err(), ledger.ErrIntegrityViolation)

	intact, err := h.FindBroken(context.Background(), buildChain(t, h, 3))
	require.NoError(t, err)
	assert.True(t, intact.Valid)
	assert.Empty(t, intact.Mismatches)
	assert.EqualValues(t, 3, intact.Checked)
}

func TestVerifyTransaction(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)
	txn := sampleTxn(1)
	h.Seal(txn)
	assert.Nil(t, h.VerifyTransaction(txn))

	txn.TotalAmount = 5
	m := h.VerifyTransaction(txn)
	require.NotNil(t, m)
	assert.Equal(t, ReasonTransactionHash, m.Reason)
	assert.Equal(t, txn.Number, m.Number)

	txn = sampleTxn(2)
	h.Seal(txn)
	txn.Entries[1].AccountID = "elsewhere"
	m = h.VerifyTransaction(txn)
	require.NotNil(t, m)
	assert.Contains(t, m.Reason, ReasonEntryHash)
}
