package hashchain

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/simonvc/chainledger/internal/ledger"
)

// Source streams sealed transactions in chain order and exposes the
// current chain tip.
type Source interface {
	WalkChain(ctx context.Context, fn func(*ledger.Transaction) error) error
	ChainTip(ctx context.Context) (seq int64, hash string, err error)
}

const (
	ReasonSequenceGap     = "chain sequence gap"
	ReasonNotApplied      = "sealed transaction is not in an applied status"
	ReasonBrokenLink      = "previous hash does not match prior transaction"
	ReasonEntryHash       = "entry hash mismatch"
	ReasonTransactionHash = "transaction hash mismatch"
	ReasonTipMismatch     = "chain tip does not match last transaction"
	ReasonMissingReversal = "reversed transaction has no posted reversal"
	ReasonOrphanReversal  = "reversal references a transaction that is not reversed"
)

// Mismatch describes a break found in the chain.
type Mismatch struct {
	Index         int64                `json:"index"`
	TransactionID ledger.TransactionID `json:"transaction_id,omitempty"`
	Number        string               `json:"transaction_number,omitempty"`
	ChainSeq      int64                `json:"chain_seq"`
	Reason        string               `json:"reason"`
}

// Report is the outcome of a chain walk. Mismatch is the first break;
// Mismatches lists every break when the walk was asked to collect them.
type Report struct {
	Valid      bool       `json:"valid"`
	Checked    int64      `json:"checked"`
	TipHash    string     `json:"tip_hash"`
	Mismatch   *Mismatch  `json:"mismatch,omitempty"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Err returns an integrity violation describing the mismatch, or nil.
func (r *Report) Err() error {
	if r.Valid || r.Mismatch == nil {
		return nil
	}
	m := r.Mismatch
	return fmt.Errorf("%w: %s at index %d (seq %d, txn %s)",
		ledger.ErrIntegrityViolation, m.Reason, m.Index, m.ChainSeq, m.Number)
}

var errStop = errors.New("stop")

// Verify recomputes every sealed transaction from its stored fields and the
// stored hash of the transaction before it. It stops at the first mismatch.
// Verify never modifies the ledger.
func (h *Hasher) Verify(ctx context.Context, src Source) (*Report, error) {
	return h.walk(ctx, src, false)
}

// FindBroken walks the whole chain and reports every mismatch instead of
// stopping at the first. Links are checked against the stored hash of the
// prior transaction, so one edited transaction yields one transaction-hash
// mismatch rather than a cascade.
func (h *Hasher) FindBroken(ctx context.Context, src Source) (*Report, error) {
	return h.walk(ctx, src, true)
}

// VerifyTransaction checks a single sealed transaction against its own
// stored hashes. It cannot see the link to its predecessor; use Verify for
// that.
func (h *Hasher) VerifyTransaction(t *ledger.Transaction) *Mismatch {
	if reason := h.contentReason(t); reason != "" {
		return &Mismatch{TransactionID: t.ID, Number: t.Number, ChainSeq: t.ChainSeq, Reason: reason}
	}
	return nil
}

func (h *Hasher) contentReason(t *ledger.Transaction) string {
	for i := range t.Entries {
		if h.EntryHash(&t.Entries[i]) != t.Entries[i].HashValue {
			return fmt.Sprintf("%s (sequence %d)", ReasonEntryHash, t.Entries[i].Sequence)
		}
	}
	if h.TransactionHash(t) != t.HashValue {
		return ReasonTransactionHash
	}
	return ""
}

func (h *Hasher) walk(ctx context.Context, src Source, all bool) (*Report, error) {
	report := &Report{Valid: true}
	var (
		prev    string
		lastSeq int64
		index   int64
		// reversed transactions waiting for their reversal further down
		// the chain
		awaiting = map[ledger.TransactionID]Mismatch{}
	)

	record := func(m Mismatch) error {
		report.Valid = false
		if report.Mismatch == nil {
			report.Mismatch = &m
		}
		if !all {
			return errStop
		}
		report.Mismatches = append(report.Mismatches, m)
		return nil
	}
	at := func(t *ledger.Transaction, reason string) Mismatch {
		return Mismatch{Index: index, TransactionID: t.ID, Number: t.Number, ChainSeq: t.ChainSeq, Reason: reason}
	}

	err := src.WalkChain(ctx, func(t *ledger.Transaction) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		defer func() {
			index++
			lastSeq = t.ChainSeq
			prev = t.HashValue
		}()

		var reason string
		switch {
		case t.ChainSeq != lastSeq+1:
			reason = ReasonSequenceGap
		case !t.Status.Applied():
			reason = ReasonNotApplied
		case t.PreviousHash != prev:
			reason = ReasonBrokenLink
		default:
			reason = h.contentReason(t)
		}
		if reason != "" {
			if err := record(at(t, reason)); err != nil {
				return err
			}
		}

		if t.Status == ledger.StatusReversed {
			awaiting[t.ID] = at(t, ReasonMissingReversal)
		}
		if t.Type == ledger.TypeReversal && t.ReferenceID != "" {
			if _, ok := awaiting[t.ReferenceID]; ok {
				delete(awaiting, t.ReferenceID)
			} else if err := record(at(t, ReasonOrphanReversal)); err != nil {
				return err
			}
		}
		if !all {
			report.Checked++
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("walk chain: %w", err)
	}
	if all {
		report.Checked = index
	}
	if !report.Valid && !all {
		return report, nil
	}

	missing := make([]Mismatch, 0, len(awaiting))
	for _, m := range awaiting {
		missing = append(missing, m)
	}
	slices.SortFunc(missing, func(a, b Mismatch) int { return cmp.Compare(a.Index, b.Index) })
	for _, m := range missing {
		if err := record(m); err != nil {
			return report, nil
		}
	}

	seq, tip, err := src.ChainTip(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	if seq != lastSeq || tip != prev {
		if err := record(Mismatch{Index: index, ChainSeq: seq, Reason: ReasonTipMismatch}); err != nil {
			return report, nil
		}
	}
	if report.Valid {
		report.TipHash = prev
	}
	return report, nil
}
