package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/ledger"
)

type txnDetailLoadedMsg struct {
	txn   *ledger.Transaction
	codes map[ledger.AccountID]string
	err   error
}

// txnActionMsg reports the outcome of post, reverse or cancel.
type txnActionMsg struct {
	verb   string
	number string
	id     string
	err    error
}

type txnDetailModel struct {
	txn       *ledger.Transaction
	codes     map[ledger.AccountID]string
	loading   bool
	err       error
	width     int
	reversing bool
	reason    textinput.Model
}

func (m *txnDetailModel) init(c *client.Client, id string) tea.Cmd {
	m.loading = true
	m.reversing = false
	return func() tea.Msg {
		ctx := context.Background()
		txn, err := c.GetTransaction(ctx, id)
		if err != nil {
			return txnDetailLoadedMsg{err: err}
		}
		codes := make(map[ledger.AccountID]string)
		for _, e := range txn.Entries {
			if _, ok := codes[e.AccountID]; ok {
				continue
			}
			if a, err := c.GetAccount(ctx, string(e.AccountID)); err == nil {
				codes[e.AccountID] = a.Code
			}
		}
		return txnDetailLoadedMsg{txn: txn, codes: codes}
	}
}

func (m txnDetailModel) update(msg tea.Msg, c *client.Client) (txnDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case txnDetailLoadedMsg:
		m.loading = false
		m.txn = msg.txn
		m.codes = msg.codes
		m.err = msg.err

	case txnActionMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if m.txn == nil {
			return m, nil
		}
		if m.reversing {
			return m.updateReason(msg, c)
		}
		id, number := string(m.txn.ID), m.txn.Number
		switch {
		case key.Matches(msg, keys.Post) && m.txn.Status == ledger.StatusPending:
			return m, func() tea.Msg {
				_, err := c.PostTransaction(context.Background(), id)
				return txnActionMsg{verb: "posted", number: number, id: id, err: err}
			}
		case key.Matches(msg, keys.Cancel) && m.txn.Status == ledger.StatusPending:
			return m, func() tea.Msg {
				_, err := c.CancelTransaction(context.Background(), id)
				return txnActionMsg{verb: "cancelled", number: number, id: id, err: err}
			}
		case key.Matches(msg, keys.Reverse) && m.txn.Status == ledger.StatusPosted:
			m.reason = textinput.New()
			m.reason.Placeholder = "reason for reversal"
			m.reason.CharLimit = 200
			m.reason.Focus()
			m.reversing = true
			m.err = nil
		}
	}
	return m, nil
}

func (m txnDetailModel) updateReason(msg tea.KeyMsg, c *client.Client) (txnDetailModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.reversing = false
		return m, nil
	case key.Matches(msg, keys.Enter):
		reason := strings.TrimSpace(m.reason.Value())
		if reason == "" {
			m.err = fmt.Errorf("a reason is required")
			return m, nil
		}
		m.reversing = false
		id, number := string(m.txn.ID), m.txn.Number
		return m, func() tea.Msg {
			_, err := c.ReverseTransaction(context.Background(), id, reason, "tui")
			return txnActionMsg{verb: "reversed", number: number, id: id, err: err}
		}
	}
	var cmd tea.Cmd
	m.reason, cmd = m.reason.Update(msg)
	return m, cmd
}

func (m *txnDetailModel) view() string {
	if m.loading {
		return "Loading transaction..."
	}
	if m.txn == nil {
		if m.err != nil {
			return errorStyle.Render("Error: " + m.err.Error())
		}
		return ""
	}

	t := m.txn
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Transaction %s", t.Number)))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Status:"), statusStyle(t.Status).Render(string(t.Status))))
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Type:"), t.Type))
	if t.Description != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Description:"), t.Description))
	}
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Date:"), t.TransactionDate.Format(ledger.DateLayout)))
	b.WriteString(fmt.Sprintf("%s %s %s\n", labelStyle.Render("Amount:"), ledger.FormatAmount(t.TotalAmount, t.Currency), t.Currency))
	if t.ReferenceID != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Reverses:"), t.ReferenceID))
	}
	if t.PostedAt != nil {
		b.WriteString(fmt.Sprintf("%s %s (seq %d)\n", labelStyle.Render("Posted:"), t.PostedAt.Format(time.DateTime), t.ChainSeq))
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Prev hash:"), shortHash(t.PreviousHash)))
	}
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Hash:"), shortHash(t.HashValue)))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-3s %-4s %-10s %15s %15s", "#", "SIDE", "ACCOUNT", "DEBIT", "CREDIT")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	for _, e := range t.Entries {
		acct := m.codes[e.AccountID]
		if acct == "" {
			acct = string(e.AccountID)
		}
		if e.DebitAmount > 0 {
			b.WriteString(debitStyle.Render(fmt.Sprintf("  %-3d %-4s %-10s %15s %15s",
				e.Sequence, "DR", acct, ledger.FormatAmount(e.DebitAmount, t.Currency), "")))
		} else {
			b.WriteString(creditStyle.Render(fmt.Sprintf("  %-3d %-4s %-10s %15s %15s",
				e.Sequence, "CR", acct, "", ledger.FormatAmount(e.CreditAmount, t.Currency))))
		}
		b.WriteString("\n")
	}

	if m.reversing {
		b.WriteString("\n  Reverse " + t.Number + ", reason:\n\n")
		b.WriteString("  " + m.reason.View() + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	var actions []string
	switch t.Status {
	case ledger.StatusPending:
		actions = append(actions, "p:post", "c:cancel")
	case ledger.StatusPosted:
		actions = append(actions, "r:reverse")
	}
	actions = append(actions, "esc:back")
	b.WriteString("\n" + dimStyle.Render("  "+strings.Join(actions, "  ")))
	return b.String()
}

func shortHash(h string) string {
	if h == "" {
		return "-"
	}
	if len(h) > 16 {
		return h[:16] + "…"
	}
	return h
}
