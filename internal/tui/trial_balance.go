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

type trialBalanceLoadedMsg struct {
	tb          *ledger.TrialBalance
	consistency *ledger.Consistency
	err         error
}

type trialBalanceModel struct {
	tb          *ledger.TrialBalance
	consistency *ledger.Consistency
	currency    string
	loading     bool
	err         error
	width       int
	height      int
}

func (m *trialBalanceModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		ctx := context.Background()
		tb, err := c.TrialBalance(ctx, time.Time{}, time.Time{})
		if err != nil {
			return trialBalanceLoadedMsg{err: err}
		}
		cons, err := c.Consistency(ctx)
		return trialBalanceLoadedMsg{tb: tb, consistency: cons, err: err}
	}
}

func (m trialBalanceModel) update(msg tea.Msg) (trialBalanceModel, tea.Cmd) {
	switch msg := msg.(type) {
	case trialBalanceLoadedMsg:
		m.loading = false
		m.tb = msg.tb
		m.consistency = msg.consistency
		m.err = msg.err
	}
	return m, nil
}

func (m *trialBalanceModel) view() string {
	if m.loading {
		return "Loading trial balance..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if m.tb == nil {
		return dimStyle.Render("No data available.")
	}

	var b strings.Builder
	w := m.width
	if w < 60 {
		w = 80
	}

	// Flexible NAME column: indent(4)+code(8)+gaps(3)+debit(15)+credit(15) = 45
	nameW := w - 45
	if nameW < 10 {
		nameW = 10
	}
	if nameW > 40 {
		nameW = 40
	}

	b.WriteString(titleStyle.Render(centerStr("TRIAL BALANCE", w)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(centerStr("Posted and reversed transactions, "+m.currency, w)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("    %-8s %-*s %15s %15s", "CODE", nameW, "NAME", "DEBIT", "CREDIT")))
	b.WriteString("\n")
	if len(m.tb.Lines) == 0 {
		b.WriteString(dimStyle.Render("    (no posted entries)") + "\n")
	}
	for _, l := range m.tb.Lines {
		name := l.AccountName
		if len(name) > nameW-2 {
			name = name[:nameW-2] + ".."
		}
		debit, credit := "", ""
		if l.TotalDebit > 0 {
			debit = ledger.FormatAmount(l.TotalDebit, m.currency)
		}
		if l.TotalCredit > 0 {
			credit = ledger.FormatAmount(l.TotalCredit, m.currency)
		}
		b.WriteString(fmt.Sprintf("    %-8s %-*s %15s %15s\n", l.AccountCode, nameW, name, debit, credit))
	}
	b.WriteString(fmt.Sprintf("    %s\n", strings.Repeat("═", w-8)))
	b.WriteString(fmt.Sprintf("    %-*s %15s %15s\n", nameW+9, "TOTALS",
		ledger.FormatAmount(m.tb.TotalDebit, m.currency),
		ledger.FormatAmount(m.tb.TotalCredit, m.currency)))

	b.WriteString("\n")
	if m.tb.Balanced {
		b.WriteString(successStyle.Render("    [BALANCED]"))
	} else {
		b.WriteString(errorStyle.Render("    [UNBALANCED!]"))
	}

	if c := m.consistency; c != nil {
		b.WriteString("\n\n")
		if c.Consistent {
			b.WriteString(successStyle.Render(fmt.Sprintf("    Stored balances match a replay of %d entries", c.EntriesChecked)))
		} else {
			b.WriteString(errorStyle.Render(fmt.Sprintf("    %d entries drifted from a replay; signed net %s",
				len(c.DriftedEntries), formatSignedAmt(c.SignedNet, m.currency))))
		}
	}

	return b.String()
}

func formatSignedAmt(amount int64, currency string) string {
	if amount < 0 {
		return "(" + ledger.FormatAmount(-amount, currency) + ")"
	}
	return ledger.FormatAmount(amount, currency)
}

func centerStr(s string, w int) string {
	if len(s) >= w {
		return s
	}
	pad := (w - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}
