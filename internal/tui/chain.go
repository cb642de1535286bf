package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/hashchain"
)

type chainVerifiedMsg struct {
	report *hashchain.Report
	took   time.Duration
	err    error
}

type chainModel struct {
	report  *hashchain.Report
	took    time.Duration
	at      time.Time
	loading bool
	err     error
	width   int
}

func (m *chainModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		start := time.Now()
		rep, err := c.VerifyChain(context.Background())
		return chainVerifiedMsg{report: rep, took: time.Since(start), err: err}
	}
}

func (m chainModel) update(msg tea.Msg) (chainModel, tea.Cmd) {
	switch msg := msg.(type) {
	case chainVerifiedMsg:
		m.loading = false
		m.report = msg.report
		m.took = msg.took
		m.at = time.Now()
		m.err = msg.err
	}
	return m, nil
}

func (m *chainModel) view() string {
	if m.loading {
		return "Verifying hash chain..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if m.report == nil {
		return dimStyle.Render("Press 'v' to verify the chain.")
	}

	r := m.report
	var b strings.Builder

	b.WriteString(titleStyle.Render("Hash Chain"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("Checked:"), r.Checked))
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Tip hash:"), orDash(r.TipHash)))
	b.WriteString(fmt.Sprintf("%s %s (%s)\n", labelStyle.Render("Verified at:"),
		m.at.Format(time.TimeOnly), m.took.Round(time.Millisecond)))
	b.WriteString("\n")

	if r.Valid {
		b.WriteString(boxStyle.Render(successStyle.Render("Chain intact: every posted transaction matches its hash and link.")))
	} else if mm := r.Mismatch; mm != nil {
		var s strings.Builder
		s.WriteString(errorStyle.Render("INTEGRITY VIOLATION") + "\n\n")
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Reason:"), mm.Reason))
		s.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("Position:"), mm.ChainSeq))
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Transaction:"), orDash(mm.Number)))
		b.WriteString(hintBoxStyle.Render(s.String()))
	}

	b.WriteString("\n\n" + dimStyle.Render("  v:verify again"))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
