package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/simonvc/chainledger/internal/store"
)

type entryRequest struct {
	AccountID    string `json:"account_id" validate:"required"`
	DebitAmount  int64  `json:"debit_amount" validate:"gte=0"`
	CreditAmount int64  `json:"credit_amount" validate:"gte=0"`
	Description  string `json:"description"`
}

type createTransactionRequest struct {
	Type            string         `json:"type" validate:"required"`
	Description     string         `json:"description"`
	TotalAmount     int64          `json:"total_amount" validate:"gte=0"`
	Currency        string         `json:"currency"`
	TransactionDate string         `json:"transaction_date" validate:"omitempty,datetime=2006-01-02"`
	PostingDate     string         `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
	SourceSystem    string         `json:"source_system"`
	CreatedBy       string         `json:"created_by"`
	ReferenceID     string         `json:"reference_id"`
	Entries         []entryRequest `json:"entries" validate:"dive"`
}

func (req createTransactionRequest) toLedger() (ledger.TransactionRequest, error) {
	out := ledger.TransactionRequest{
		Type:         req.Type,
		Description:  req.Description,
		TotalAmount:  req.TotalAmount,
		Currency:     req.Currency,
		SourceSystem: req.SourceSystem,
		CreatedBy:    req.CreatedBy,
		ReferenceID:  ledger.TransactionID(req.ReferenceID),
		Entries:      make([]ledger.EntryRequest, len(req.Entries)),
	}
	var err error
	if out.TransactionDate, err = ledger.ParseDate(req.TransactionDate); err != nil {
		return out, err
	}
	if out.PostingDate, err = ledger.ParseDate(req.PostingDate); err != nil {
		return out, err
	}
	for i, e := range req.Entries {
		out.Entries[i] = ledger.EntryRequest{
			AccountID:    ledger.AccountID(e.AccountID),
			DebitAmount:  e.DebitAmount,
			CreditAmount: e.CreditAmount,
			Description:  e.Description,
		}
	}
	return out, nil
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	lreq, err := req.toLedger()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txn, err := s.ledger.CreateTransaction(r.Context(), lreq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TxnFilter{
		Status:    ledger.Status(q.Get("status")),
		AccountID: ledger.AccountID(q.Get("account_id")),
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		s.writeError(w, r, err)
		return
	}

	txns, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.GetTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) verifyTransaction(w http.ResponseWriter, r *http.Request) {
	check, err := s.ledger.VerifyTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) getTransactionByNumber(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.GetTransactionByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.PostTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

type reverseRequest struct {
	Reason     string `json:"reason" validate:"required,max=200"`
	ReversedBy string `json:"reversed_by" validate:"required,max=100"`
}

func (s *Server) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rev, err := s.ledger.ReverseTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), req.Reason, req.ReversedBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) cancelTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.CancelTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}
