package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/simonvc/chainledger/internal/hashchain"
	"github.com/simonvc/chainledger/internal/ledger"
)

// DefaultRetries is how many times a contended request is repeated.
const DefaultRetries = 3

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retries: DefaultRetries,
		backoff: 200 * time.Millisecond,
	}
}

// WithRetry sets how often and how long apart contended requests are
// retried. Zero retries disables retrying.
func (c *Client) WithRetry(retries int, backoff time.Duration) *Client {
	c.retries = retries
	c.backoff = backoff
	return c
}

// APIError is a non-2xx response. It unwraps to the ledger error kind the
// server reported, so errors.Is(err, ledger.ErrContention) works on the
// client side too.
type APIError struct {
	Status    int
	Message   string
	Kind      string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case "validation":
		return ledger.ErrValidation
	case "invalid_state":
		return ledger.ErrInvalidState
	case "contention":
		return ledger.ErrContention
	case "integrity":
		return ledger.ErrIntegrityViolation
	case "not_found":
		if e.Status == http.StatusNotFound {
			return errNotFound
		}
	}
	return nil
}

var errNotFound = errors.New("not found")

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

// AccountRequest creates an account. ParentCode and Type are optional.
type AccountRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	ParentCode  string `json:"parent_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *Client) CreateAccount(ctx context.Context, req AccountRequest) (*ledger.Account, error) {
	var result ledger.Account
	if err := c.post(ctx, "/api/v1/accounts", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type AccountQuery struct {
	Type       string
	ActiveOnly bool
	ParentID   string
	RootsOnly  bool
	Search     string
}

func (c *Client) ListAccounts(ctx context.Context, q AccountQuery) ([]ledger.Account, error) {
	params := url.Values{}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.ActiveOnly {
		params.Set("active", "true")
	}
	if q.ParentID != "" {
		params.Set("parent_id", q.ParentID)
	}
	if q.RootsOnly {
		params.Set("roots", "true")
	}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	var result []ledger.Account
	if err := c.get(ctx, "/api/v1/accounts?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	var result ledger.Account
	if err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	var result ledger.Account
	if err := c.get(ctx, "/api/v1/accounts/code/"+url.PathEscape(code), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveAccount accepts either an account id or an account code.
func (c *Client) ResolveAccount(ctx context.Context, ref string) (*ledger.Account, error) {
	acct, err := c.GetAccountByCode(ctx, ref)
	if err == nil || !IsNotFound(err) {
		return acct, err
	}
	return c.GetAccount(ctx, ref)
}

type BalanceResponse struct {
	AccountID string     `json:"account_id"`
	Code      string     `json:"code"`
	Balance   int64      `json:"balance"`
	Currency  string     `json:"currency"`
	Formatted string     `json:"formatted"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// GetAccountBalance returns the current balance, or the balance as of a
// date when asOf is non-zero.
func (c *Client) GetAccountBalance(ctx context.Context, id string, asOf time.Time) (*BalanceResponse, error) {
	path := "/api/v1/accounts/" + url.PathEscape(id) + "/balance"
	if !asOf.IsZero() {
		path += "?as_of=" + asOf.Format(ledger.DateLayout)
	}
	var result BalanceResponse
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) AccountLedger(ctx context.Context, id string) ([]ledger.LedgerLine, error) {
	var result []ledger.LedgerLine
	if err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/ledger", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) DeactivateAccount(ctx context.Context, id string) (*ledger.Account, error) {
	var result ledger.Account
	if err := c.post(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/deactivate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChartNode mirrors the server's nested chart of accounts.
type ChartNode struct {
	ledger.Account
	Children []ChartNode `json:"children,omitempty"`
}

func (c *Client) GetChart(ctx context.Context) ([]ChartNode, error) {
	var result []ChartNode
	if err := c.get(ctx, "/api/v1/chart", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error) {
	entries := make([]map[string]any, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = map[string]any{
			"account_id":    e.AccountID,
			"debit_amount":  e.DebitAmount,
			"credit_amount": e.CreditAmount,
			"description":   e.Description,
		}
	}
	body := map[string]any{
		"type":          req.Type,
		"description":   req.Description,
		"total_amount":  req.TotalAmount,
		"currency":      req.Currency,
		"source_system": req.SourceSystem,
		"created_by":    req.CreatedBy,
		"reference_id":  req.ReferenceID,
		"entries":       entries,
	}
	if !req.TransactionDate.IsZero() {
		body["transaction_date"] = req.TransactionDate.Format(ledger.DateLayout)
	}
	if !req.PostingDate.IsZero() {
		body["posting_date"] = req.PostingDate.Format(ledger.DateLayout)
	}

	var result ledger.Transaction
	if err := c.post(ctx, "/api/v1/transactions", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type TransactionQuery struct {
	Status    string
	AccountID string
	From, To  time.Time
	Limit     int
}

func (c *Client) ListTransactions(ctx context.Context, q TransactionQuery) ([]ledger.Transaction, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.AccountID != "" {
		params.Set("account_id", q.AccountID)
	}
	if !q.From.IsZero() {
		params.Set("from", q.From.Format(ledger.DateLayout))
	}
	if !q.To.IsZero() {
		params.Set("to", q.To.Format(ledger.DateLayout))
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}
	var result []ledger.Transaction
	if err := c.get(ctx, "/api/v1/transactions?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	var result ledger.Transaction
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetTransactionByNumber(ctx context.Context, number string) (*ledger.Transaction, error) {
	var result ledger.Transaction
	if err := c.get(ctx, "/api/v1/transactions/number/"+url.PathEscape(number), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveTransaction accepts either a transaction id or a TXN number.
func (c *Client) ResolveTransaction(ctx context.Context, ref string) (*ledger.Transaction, error) {
	txn, err := c.GetTransactionByNumber(ctx, ref)
	if err == nil || !IsNotFound(err) {
		return txn, err
	}
	return c.GetTransaction(ctx, ref)
}

func (c *Client) PostTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	var result ledger.Transaction
	if err := c.post(ctx, "/api/v1/transactions/"+url.PathEscape(id)+"/post", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type Reversal struct {
	Original *ledger.Transaction `json:"original"`
	Reversal *ledger.Transaction `json:"reversal"`
}

func (c *Client) ReverseTransaction(ctx context.Context, id, reason, reversedBy string) (*Reversal, error) {
	body := map[string]string{"reason": reason, "reversed_by": reversedBy}
	var result Reversal
	if err := c.post(ctx, "/api/v1/transactions/"+url.PathEscape(id)+"/reverse", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CancelTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	var result ledger.Transaction
	if err := c.post(ctx, "/api/v1/transactions/"+url.PathEscape(id)+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) VerifyChain(ctx context.Context) (*hashchain.Report, error) {
	var result hashchain.Report
	if err := c.get(ctx, "/api/v1/chain/verify", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindBrokenTransactions lists every break in the chain.
func (c *Client) FindBrokenTransactions(ctx context.Context) (*hashchain.Report, error) {
	var result hashchain.Report
	if err := c.get(ctx, "/api/v1/chain/broken", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type TransactionCheck struct {
	TransactionID ledger.TransactionID `json:"transaction_id"`
	Number        string               `json:"transaction_number"`
	Status        ledger.Status        `json:"status"`
	ChainSeq      int64                `json:"chain_seq,omitempty"`
	HashValue     string               `json:"hash_value"`
	Valid         bool                 `json:"valid"`
	Reason        string               `json:"reason,omitempty"`
}

func (c *Client) VerifyTransaction(ctx context.Context, id string) (*TransactionCheck, error) {
	var result TransactionCheck
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(id)+"/verify", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TrialBalance fetches the trial balance, bounded by transaction date when
// from or to is non-zero.
func (c *Client) TrialBalance(ctx context.Context, from, to time.Time) (*ledger.TrialBalance, error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("from", from.Format(ledger.DateLayout))
	}
	if !to.IsZero() {
		params.Set("to", to.Format(ledger.DateLayout))
	}
	var result ledger.TrialBalance
	if err := c.get(ctx, "/api/v1/reports/trial-balance?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Consistency(ctx context.Context) (*ledger.Consistency, error) {
	var result ledger.Consistency
	if err := c.get(ctx, "/api/v1/reports/consistency", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks if the server is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, data, result)
}

// do sends the request, repeating it with linear backoff while the server
// reports retryable contention.
func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	for attempt := 0; ; attempt++ {
		err := c.once(ctx, method, path, body, result)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.Retryable || attempt >= c.retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, result any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes))}
		var payload struct {
			Error     string `json:"error"`
			Kind      string `json:"kind"`
			Retryable bool   `json:"retryable"`
		}
		if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
			apiErr.Retryable = payload.Retryable
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
