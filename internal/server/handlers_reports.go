package server

import (
	"net/http"

	"github.com/simonvc/chainledger/internal/ledger"
)

// ChartNode is one account in the nested chart of accounts.
type ChartNode struct {
	ledger.Account
	Children []ChartNode `json:"children,omitempty"`
}

func buildChart(chart *ledger.Chart, accounts []ledger.Account) []ChartNode {
	nodes := make([]ChartNode, 0, len(accounts))
	for _, a := range accounts {
		nodes = append(nodes, ChartNode{Account: a, Children: buildChart(chart, chart.Children(a.ID))})
	}
	return nodes
}

func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	chart, err := s.ledger.AccountTree(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildChart(chart, chart.Roots()))
}

func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
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
	tb, err := s.ledger.TrialBalance(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

func (s *Server) consistency(w http.ResponseWriter, r *http.Request) {
	c, err := s.ledger.CheckConsistency(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// verifyChain reports a broken chain in the body with 200; only a failure
// to run the verification is an error response.
func (s *Server) verifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.VerifyHashChainIntegrity(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// brokenTransactions lists every break in the chain rather than the first.
func (s *Server) brokenTransactions(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.FindBrokenTransactions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
