package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/simonvc/chainledger/internal/service"
	"github.com/simonvc/chainledger/internal/store"
)

type createAccountRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=200"`
	Type        string `json:"type"`
	ParentCode  string `json:"parent_code"`
	Description string `json:"description" validate:"max=500"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var typ ledger.AccountType
	if req.Type != "" {
		var err error
		if typ, err = ledger.ParseAccountType(req.Type); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	acct, err := s.ledger.CreateAccount(r.Context(), service.AccountRequest{
		Code:        req.Code,
		Name:        req.Name,
		Type:        typ,
		ParentCode:  req.ParentCode,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AccountFilter{
		ActiveOnly:   queryBool(r, "active"),
		RootsOnly:    queryBool(r, "roots"),
		ParentID:     ledger.AccountID(q.Get("parent_id")),
		NameContains: q.Get("q"),
	}
	if t := q.Get("type"); t != "" {
		typ, err := ledger.ParseAccountType(t)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.Type = typ
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		s.writeError(w, r, err)
		return
	}

	accounts, err := s.ledger.ListAccounts(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []ledger.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func accountID(r *http.Request) ledger.AccountID {
	id, _ := url.PathUnescape(chi.URLParam(r, "id"))
	return ledger.AccountID(id)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.GetAccount(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) getAccountByCode(w http.ResponseWriter, r *http.Request) {
	code, _ := url.PathUnescape(chi.URLParam(r, "code"))
	acct, err := s.ledger.GetAccountByCode(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type balanceResponse struct {
	AccountID ledger.AccountID `json:"account_id"`
	Code      string           `json:"code"`
	Balance   int64            `json:"balance"`
	Currency  string           `json:"currency"`
	Formatted string           `json:"formatted"`
	AsOf      *time.Time       `json:"as_of,omitempty"`
}

func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := accountID(r)
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.ledger.GetAccount(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var bal int64
	if asOf != nil {
		bal, err = s.ledger.AccountBalanceAsOf(ctx, id, *asOf)
	} else {
		bal, err = s.ledger.AccountBalance(ctx, id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cur := s.ledger.DefaultCurrency()
	writeJSON(w, http.StatusOK, balanceResponse{
		AccountID: acct.ID,
		Code:      acct.Code,
		Balance:   bal,
		Currency:  cur,
		Formatted: ledger.FormatAmount(bal, cur),
		AsOf:      asOf,
	})
}

func (s *Server) getAccountLedger(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lines, err := s.ledger.AccountLedger(r.Context(), accountID(r), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.DeactivateAccount(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
