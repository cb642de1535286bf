package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/chainledger/internal/client"
	"github.com/simonvc/chainledger/internal/ledger"
)

type wizardStep int

const (
	stepCode wizardStep = iota
	stepType
	stepName
	stepParent
	stepConfirm
)

const wizardSteps = int(stepConfirm) + 1

type accountCreatedMsg struct {
	account *ledger.Account
	err     error
}

// wizardModel walks through creating one account.
type wizardModel struct {
	step      wizardStep
	code      textinput.Model
	name      textinput.Model
	parent    textinput.Model
	typeIdx   int
	suggested bool

	err       error
	done      bool
	cancelled bool
	statusMsg string
	width     int
}

func newWizard() wizardModel {
	codeInput := textinput.New()
	codeInput.Placeholder = "e.g. 1060"
	codeInput.CharLimit = 32
	codeInput.Focus()

	nameInput := textinput.New()
	nameInput.Placeholder = "e.g. Petty Cash"
	nameInput.CharLimit = 100

	parentInput := textinput.New()
	parentInput.Placeholder = "e.g. 1000 (optional)"
	parentInput.CharLimit = 32

	return wizardModel{
		step:   stepCode,
		code:   codeInput,
		name:   nameInput,
		parent: parentInput,
	}
}

func (m wizardModel) accountType() ledger.AccountType {
	return ledger.AllAccountTypes[m.typeIdx]
}

func (m wizardModel) update(msg tea.Msg, c *client.Client) (wizardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountCreatedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.done = true
		m.statusMsg = fmt.Sprintf("Account %s %s created", msg.account.Code, msg.account.Name)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Escape) {
			m.cancelled = true
			return m, nil
		}

		switch m.step {
		case stepCode:
			return m.updateCode(msg)
		case stepType:
			return m.updateType(msg)
		case stepName:
			return m.updateName(msg)
		case stepParent:
			return m.updateParent(msg)
		case stepConfirm:
			return m.updateConfirm(msg, c)
		}
	}
	return m, nil
}

func (m wizardModel) updateCode(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		code := strings.TrimSpace(m.code.Value())
		if code == "" {
			m.err = fmt.Errorf("code is required")
			return m, nil
		}
		m.suggested = false
		if t, ok := ledger.SuggestedType(code); ok {
			for i, at := range ledger.AllAccountTypes {
				if at == t {
					m.typeIdx = i
					m.suggested = true
				}
			}
		}
		m.err = nil
		m.code.Blur()
		m.step = stepType
		return m, nil
	}
	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	return m, cmd
}

func (m wizardModel) updateType(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.typeIdx > 0 {
			m.typeIdx--
		}
	case key.Matches(msg, keys.Down):
		if m.typeIdx < len(ledger.AllAccountTypes)-1 {
			m.typeIdx++
		}
	case key.Matches(msg, keys.Enter):
		m.step = stepName
		m.name.Focus()
	}
	return m, nil
}

func (m wizardModel) updateName(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		if strings.TrimSpace(m.name.Value()) == "" {
			m.err = fmt.Errorf("name is required")
			return m, nil
		}
		m.err = nil
		m.name.Blur()
		m.step = stepParent
		m.parent.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	m.name, cmd = m.name.Update(msg)
	return m, cmd
}

func (m wizardModel) updateParent(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		m.parent.Blur()
		m.step = stepConfirm
		return m, nil
	}
	var cmd tea.Cmd
	m.parent, cmd = m.parent.Update(msg)
	return m, cmd
}

func (m wizardModel) updateConfirm(msg tea.KeyMsg, c *client.Client) (wizardModel, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		req := client.AccountRequest{
			Code:       strings.TrimSpace(m.code.Value()),
			Name:       strings.TrimSpace(m.name.Value()),
			Type:       string(m.accountType()),
			ParentCode: strings.TrimSpace(m.parent.Value()),
		}
		return m, func() tea.Msg {
			acct, err := c.CreateAccount(context.Background(), req)
			return accountCreatedMsg{account: acct, err: err}
		}
	case "n", "N":
		m.cancelled = true
	}
	return m, nil
}

func (m *wizardModel) view() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("New Account"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Step %d of %d", int(m.step)+1, wizardSteps)))
	b.WriteString("\n\n")

	switch m.step {
	case stepCode:
		b.WriteString("  Enter account code:\n\n")
		b.WriteString("  " + m.code.View() + "\n")
		b.WriteString("\n" + dimStyle.Render("  1xxx assets, 2xxx liabilities, 3xxx equity, 4xxx revenue, 5xxx expenses") + "\n")

	case stepType:
		b.WriteString(fmt.Sprintf("  Code: %s\n", m.code.Value()))
		b.WriteString("  Select account type:\n\n")
		for i, at := range ledger.AllAccountTypes {
			label := fmt.Sprintf("%-10s normal %s", at.Label(), at.NormalBalance())
			if i == m.typeIdx {
				b.WriteString(selectedStyle.Render("  > "+label) + "\n")
			} else {
				b.WriteString("    " + label + "\n")
			}
		}
		if m.suggested {
			b.WriteString("\n" + dimStyle.Render("  Type suggested from the code") + "\n")
		}

	case stepName:
		b.WriteString(fmt.Sprintf("  Code: %s | Type: %s\n", m.code.Value(), m.accountType().Label()))
		b.WriteString("  Enter account name:\n\n")
		b.WriteString("  " + m.name.View() + "\n")

	case stepParent:
		b.WriteString(fmt.Sprintf("  %s %s\n", m.code.Value(), m.name.Value()))
		b.WriteString("  Parent account code (enter to skip):\n\n")
		b.WriteString("  " + m.parent.View() + "\n")

	case stepConfirm:
		var summary strings.Builder
		summary.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Code:"), m.code.Value()))
		summary.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Name:"), m.name.Value()))
		summary.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Type:"), m.accountType().Label()))
		if p := strings.TrimSpace(m.parent.Value()); p != "" {
			summary.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Parent:"), p))
		}
		b.WriteString(boxStyle.Render(summary.String()))
		b.WriteString("\n\n  Create this account? (y/n)\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("  ESC to cancel"))
	return b.String()
}
