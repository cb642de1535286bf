package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/ledger"
)

type txnsLoadedMsg struct {
	txns []ledger.Transaction
	err  error
}

// statusFilters is the cycle order of the f key; "" shows everything.
var statusFilters = []ledger.Status{"", ledger.StatusPending, ledger.StatusPosted, ledger.StatusReversed, ledger.StatusCancelled}

type txnListModel struct {
	txns      []ledger.Transaction
	cursor    int
	filterIdx int
	loading   bool
	err       error
	width     int
	height    int
}

func (m *txnListModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	status := string(statusFilters[m.filterIdx])
	return func() tea.Msg {
		txns, err := c.ListTransactions(context.Background(), client.TransactionQuery{Status: status, Limit: 500})
		return txnsLoadedMsg{txns: txns, err: err}
	}
}

func (m *txnListModel) cycleFilter() {
	m.filterIdx = (m.filterIdx + 1) % len(statusFilters)
	m.cursor = 0
}

func (m txnListModel) update(msg tea.Msg) (txnListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case txnsLoadedMsg:
		m.loading = false
		m.txns = msg.txns
		m.err = msg.err
		if m.cursor >= len(m.txns) {
			m.cursor = max(len(m.txns)-1, 0)
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.txns)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m *txnListModel) selectedID() string {
	if m.cursor >= 0 && m.cursor < len(m.txns) {
		return string(m.txns[m.cursor].ID)
	}
	return ""
}

func (m *txnListModel) view() string {
	if m.loading {
		return "Loading transactions..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}

	var b strings.Builder

	title := "Transactions"
	if f := statusFilters[m.filterIdx]; f != "" {
		title += " (" + string(f) + ")"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(m.txns) == 0 {
		b.WriteString(dimStyle.Render("No transactions found. Press 't' to create one."))
		return b.String()
	}

	header := fmt.Sprintf("  %-30s %-10s %-9s %14s %5s  %s", "NUMBER", "DATE", "STATUS", "AMOUNT", "SEQ", "DESCRIPTION")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	maxRows := m.height - 4
	if maxRows < 1 {
		maxRows = 10
	}

	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}

	for i := start; i < len(m.txns) && i < start+maxRows; i++ {
		t := m.txns[i]
		desc := t.Description
		if len(desc) > 30 {
			desc = desc[:28] + ".."
		}
		seq := "-"
		if t.ChainSeq > 0 {
			seq = fmt.Sprint(t.ChainSeq)
		}

		line := fmt.Sprintf("  %-30s %-10s %-9s %14s %5s  %s",
			t.Number,
			t.TransactionDate.Format(ledger.DateLayout),
			t.Status,
			ledger.FormatAmount(t.TotalAmount, t.Currency),
			seq,
			desc,
		)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line[2:]))
		} else {
			b.WriteString(statusStyle(t.Status).Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\n  %d transactions", len(m.txns)))
	return b.String()
}
