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

type accountsLoadedMsg struct {
	accounts []ledger.Account
	err      error
}

// accountDeactivateConfirmedMsg is sent when the user confirms deactivation.
type accountDeactivateConfirmedMsg struct {
	id   string
	code string
}

// accountDeactivatedMsg is sent after the server processes the deactivation.
type accountDeactivatedMsg struct {
	code string
	err  error
}

type accountListModel struct {
	accounts      []ledger.Account
	cursor        int
	loading       bool
	err           error
	width         int
	height        int
	confirmTarget *ledger.Account
}

func (m *accountListModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		accounts, err := c.ListAccounts(context.Background(), client.AccountQuery{})
		return accountsLoadedMsg{accounts: accounts, err: err}
	}
}

func (m accountListModel) confirming() bool {
	return m.confirmTarget != nil
}

func (m accountListModel) update(msg tea.Msg) (accountListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountsLoadedMsg:
		m.loading = false
		m.accounts = msg.accounts
		m.err = msg.err
		if m.cursor >= len(m.accounts) {
			m.cursor = max(len(m.accounts)-1, 0)
		}

	case accountDeactivatedMsg:
		m.confirmTarget = nil
		if msg.err != nil {
			m.err = msg.err
		}

	case tea.KeyMsg:
		if m.confirmTarget != nil {
			target := m.confirmTarget
			m.confirmTarget = nil
			switch msg.String() {
			case "y", "Y":
				return m, func() tea.Msg {
					return accountDeactivateConfirmedMsg{id: string(target.ID), code: target.Code}
				}
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.accounts)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Deactivate):
			if m.cursor < len(m.accounts) && m.accounts[m.cursor].Active {
				a := m.accounts[m.cursor]
				m.confirmTarget = &a
				m.err = nil
			}
		}
	}
	return m, nil
}

func (m *accountListModel) selectedID() string {
	if m.cursor >= 0 && m.cursor < len(m.accounts) {
		return string(m.accounts[m.cursor].ID)
	}
	return ""
}

// depth counts ancestors present in the loaded list, for indentation.
func (m *accountListModel) depth(a ledger.Account) int {
	byID := make(map[ledger.AccountID]ledger.Account, len(m.accounts))
	for _, x := range m.accounts {
		byID[x.ID] = x
	}
	d := 0
	for p := a.ParentID; p != "" && d < 8; d++ {
		parent, ok := byID[p]
		if !ok {
			break
		}
		p = parent.ParentID
	}
	return d
}

func (m *accountListModel) view() string {
	if m.loading {
		return "Loading accounts..."
	}
	if m.err != nil && len(m.accounts) == 0 {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if len(m.accounts) == 0 {
		return dimStyle.Render("No accounts found. Press 'n' to create one.")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Chart of Accounts"))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-8s %-36s %-10s %-7s %s", "CODE", "NAME", "TYPE", "NORMAL", "")
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

	for i := start; i < len(m.accounts) && i < start+maxRows; i++ {
		a := m.accounts[i]
		name := strings.Repeat("  ", m.depth(a)) + a.Name
		if len(name) > 34 {
			name = name[:34] + ".."
		}
		flag := ""
		if !a.Active {
			flag = "inactive"
		}

		line := fmt.Sprintf("  %-8s %-36s %-10s %-7s %s", a.Code, name, a.Type, a.Type.NormalBalance(), flag)
		switch {
		case i == m.cursor:
			b.WriteString(selectedStyle.Render("> " + line[2:]))
		case !a.Active:
			b.WriteString(dimStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	switch {
	case m.confirmTarget != nil:
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("  Deactivate account %s %s? (y/n)", m.confirmTarget.Code, m.confirmTarget.Name)))
	case m.err != nil:
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()))
	default:
		b.WriteString(fmt.Sprintf("\n  %d accounts", len(m.accounts)))
	}

	return b.String()
}
