// Package hashchain computes the tamper-evident digests that link every
// applied transaction to the one sealed before it.
//
// All inputs are written in a canonical, length-prefixed form: each field is
// "<byte length>:<bytes>;", integers are base 10 minor units and dates are
// YYYY-MM-DD in UTC. The digest is lowercase hex.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
	"golang.org/x/crypto/sha3"
)

type Algorithm string

const (
	SHA256   Algorithm = "sha256"
	SHA3_256 Algorithm = "sha3-256"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(s))); alg {
	case "", SHA256:
		return SHA256, nil
	case SHA3_256:
		return alg, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

// Hasher produces entry and transaction digests with a fixed algorithm.
type Hasher struct {
	alg     Algorithm
	newHash func() hash.Hash
}

func New(alg Algorithm) (*Hasher, error) {
	h := &Hasher{alg: alg}
	switch alg {
	case SHA256:
		h.newHash = sha256.New
	case SHA3_256:
		h.newHash = sha3.New256
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
	return h, nil
}

func (h *Hasher) Algorithm() Algorithm { return h.alg }

// EntryHash digests an entry's account, amounts, sequence and description.
// It does not cover BalanceAfter, which is unknown when the entry is created.
func (h *Hasher) EntryHash(e *ledger.JournalEntry) string {
	d := h.newHash()
	w := fieldWriter{w: d}
	w.str("entry/v1")
	w.str(string(e.AccountID))
	w.num(e.DebitAmount)
	w.num(e.CreditAmount)
	w.num(int64(e.Sequence))
	w.str(e.Description)
	return hex.EncodeToString(d.Sum(nil))
}

// TransactionHash digests the transaction's content, its posting time, the
// ordered entry hashes already stored on its entries, and PreviousHash.
func (h *Hasher) TransactionHash(t *ledger.Transaction) string {
	d := h.newHash()
	w := fieldWriter{w: d}
	w.str("txn/v1")
	w.str(t.Number)
	w.str(t.Type)
	w.str(t.Description)
	w.num(t.TotalAmount)
	w.str(t.Currency)
	w.date(t.TransactionDate)
	w.date(t.PostingDate)
	w.str(t.SourceSystem)
	w.str(t.CreatedBy)
	w.str(string(t.ReferenceID))
	w.timestamp(t.PostedAt)
	w.num(int64(len(t.Entries)))
	for i := range t.Entries {
		w.str(t.Entries[i].HashValue)
	}
	w.str(t.PreviousHash)
	return hex.EncodeToString(d.Sum(nil))
}

// Seal computes every entry hash and then the transaction hash, storing
// them on t.
func (h *Hasher) Seal(t *ledger.Transaction) {
	for i := range t.Entries {
		t.Entries[i].HashValue = h.EntryHash(&t.Entries[i])
	}
	t.HashValue = h.TransactionHash(t)
}

type fieldWriter struct {
	w io.Writer
}

func (f fieldWriter) str(s string) {
	io.WriteString(f.w, strconv.Itoa(len(s)))
	io.WriteString(f.w, ":")
	io.WriteString(f.w, s)
	io.WriteString(f.w, ";")
}

func (f fieldWriter) num(n int64) {
	f.str(strconv.FormatInt(n, 10))
}

func (f fieldWriter) date(t time.Time) {
	if t.IsZero() {
		f.str("")
		return
	}
	f.str(t.UTC().Format(ledger.DateLayout))
}

func (f fieldWriter) timestamp(t *time.Time) {
	if t == nil {
		f.str("")
		return
	}
	f.str(t.UTC().Format(time.RFC3339Nano))
}
