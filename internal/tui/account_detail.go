package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/ledger"
)

type accountDetailLoadedMsg struct {
	account *ledger.Account
	balance *client.BalanceResponse
	lines   []ledger.LedgerLine
	err     error
}

type accountDetailModel struct {
	account  *ledger.Account
	balance  *client.BalanceResponse
	lines    []ledger.LedgerLine
	currency string
	loading  bool
	err      error
	width    int
}

func (m *accountDetailModel) init(c *client.Client, id string) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		ctx := context.Background()
		acct, err := c.GetAccount(ctx, id)
		if err != nil {
			return accountDetailLoadedMsg{err: err}
		}
		bal, err := c.GetAccountBalance(ctx, id, time.Time{})
		if err != nil {
			return accountDetailLoadedMsg{account: acct, err: err}
		}
		lines, err := c.AccountLedger(ctx, id)
		return accountDetailLoadedMsg{account: acct, balance: bal, lines: lines, err: err}
	}
}

func (m accountDetailModel) update(msg tea.Msg) (accountDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountDetailLoadedMsg:
		m.loading = false
		m.account = msg.account
		m.balance = msg.balance
		m.lines = msg.lines
		m.err = msg.err
	}
	return m, nil
}

func (m *accountDetailModel) view() string {
	if m.loading {
		return "Loading account..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if m.account == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Account %s  %s", m.account.Code, m.account.Name)))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("ID:"), m.account.ID))
	b.WriteString(fmt.Sprintf("%s %s (normal %s)\n", labelStyle.Render("Type:"),
		m.account.Type.Label(), m.account.Type.NormalBalance()))
	if m.account.Description != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Description:"), m.account.Description))
	}
	b.WriteString(fmt.Sprintf("%s %v\n", labelStyle.Render("Active:"), m.account.Active))
	if m.balance != nil {
		b.WriteString(fmt.Sprintf("%s %s %s\n", labelStyle.Render("Balance:"), m.balance.Formatted, m.balance.Currency))
	}
	b.WriteString("\n")

	if len(m.lines) == 0 {
		b.WriteString(dimStyle.Render("  No posted entries."))
	} else {
		header := fmt.Sprintf("  %5s  %-10s  %-30s %13s %13s %13s", "SEQ", "DATE", "TRANSACTION", "DEBIT", "CREDIT", "BALANCE")
		b.WriteString(headerStyle.Render(header))
		b.WriteString("\n")

		for _, l := range m.lines {
			debit, credit := "", ""
			if l.DebitAmount > 0 {
				debit = ledger.FormatAmount(l.DebitAmount, m.currency)
			}
			if l.CreditAmount > 0 {
				credit = ledger.FormatAmount(l.CreditAmount, m.currency)
			}
			line := fmt.Sprintf("  %5d  %-10s  %-30s %13s %13s %13s",
				l.ChainSeq, l.TransactionDate.Format(ledger.DateLayout), l.Number,
				debit, credit, ledger.FormatAmount(l.RunningBalance, m.currency))
			if l.DebitAmount > 0 {
				b.WriteString(debitStyle.Render(line))
			} else {
				b.WriteString(creditStyle.Render(line))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("  Press ESC to go back"))
	return b.String()
}
