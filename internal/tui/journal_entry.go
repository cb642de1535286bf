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

type jeStep int

const (
	jeStepDescription jeStep = iota
	jeStepEntryAccount
	jeStepEntryType
	jeStepEntryAmount
	jeStepEntryMore
	jeStepConfirm
)

type entryLine struct {
	account ledger.Account
	isDebit bool
	amount  int64
}

type accountsForJEMsg struct {
	accounts []ledger.Account
	err      error
}

type txnCreatedMsg struct {
	txn    *ledger.Transaction
	posted bool
	err    error
}

// journalEntryModel builds a single-currency transaction entry by entry.
type journalEntryModel struct {
	step        jeStep
	description textinput.Model
	entries     []entryLine
	currency    string

	// Current entry being built
	accountInput textinput.Model
	amountInput  textinput.Model
	account      ledger.Account
	isDebit      bool
	moreCursor   int // 0 = add another, 1 = done

	// Active accounts, for lookup by code
	accounts []ledger.Account

	err       error
	done      bool
	cancelled bool
	statusMsg string
	width     int
}

func newJournalEntry(currency string) journalEntryModel {
	descInput := textinput.New()
	descInput.Placeholder = "e.g. Customer deposit"
	descInput.CharLimit = 500
	descInput.Focus()

	acctInput := textinput.New()
	acctInput.Placeholder = "e.g. 1010"
	acctInput.CharLimit = 32

	amtInput := textinput.New()
	amtInput.Placeholder = "e.g. 500.00"
	amtInput.CharLimit = 24

	return journalEntryModel{
		step:         jeStepDescription,
		description:  descInput,
		accountInput: acctInput,
		amountInput:  amtInput,
		isDebit:      true,
		currency:     currency,
	}
}

func (m *journalEntryModel) loadAccounts(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		accounts, err := c.ListAccounts(context.Background(), client.AccountQuery{ActiveOnly: true})
		return accountsForJEMsg{accounts: accounts, err: err}
	}
}

func (m journalEntryModel) update(msg tea.Msg, c *client.Client) (journalEntryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountsForJEMsg:
		m.accounts = msg.accounts
		m.err = msg.err
		return m, nil

	case txnCreatedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.step = jeStepConfirm
			return m, nil
		}
		m.done = true
		verb := "created"
		if msg.posted {
			verb = fmt.Sprintf("posted at chain position %d", msg.txn.ChainSeq)
		}
		m.statusMsg = fmt.Sprintf("Transaction %s %s", msg.txn.Number, verb)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Escape) {
			m.cancelled = true
			return m, nil
		}

		switch m.step {
		case jeStepDescription:
			return m.updateDescription(msg)
		case jeStepEntryAccount:
			return m.updateEntryAccount(msg)
		case jeStepEntryType:
			return m.updateEntryType(msg)
		case jeStepEntryAmount:
			return m.updateEntryAmount(msg)
		case jeStepEntryMore:
			return m.updateEntryMore(msg)
		case jeStepConfirm:
			return m.updateConfirm(msg, c)
		}
	}
	return m, nil
}

func (m journalEntryModel) updateDescription(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		m.err = nil
		m.step = jeStepEntryAccount
		m.accountInput.SetValue("")
		m.accountInput.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	m.description, cmd = m.description.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateEntryAccount(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		code := strings.TrimSpace(m.accountInput.Value())
		if code == "" {
			m.err = fmt.Errorf("account code is required")
			return m, nil
		}
		acct, ok := m.lookup(code)
		if !ok {
			m.err = fmt.Errorf("no active account with code %q", code)
			return m, nil
		}
		m.account = acct
		m.err = nil
		m.step = jeStepEntryType
		m.isDebit = !m.lastWasDebit()
		return m, nil
	}
	var cmd tea.Cmd
	m.accountInput, cmd = m.accountInput.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateEntryType(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		m.isDebit = !m.isDebit
	case key.Matches(msg, keys.Enter):
		m.err = nil
		m.step = jeStepEntryAmount
		m.amountInput.SetValue("")
		if diff := m.imbalance(); diff != 0 && (diff > 0) != m.isDebit {
			// Prefill the amount that would balance the entry.
			if diff < 0 {
				diff = -diff
			}
			m.amountInput.SetValue(ledger.FormatAmount(diff, m.currency))
		}
		m.amountInput.Focus()
	}
	return m, nil
}

func (m journalEntryModel) updateEntryAmount(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		minor, err := ledger.ToMinorUnits(m.amountInput.Value(), m.currency)
		if err != nil {
			m.err = err
			return m, nil
		}
		if minor <= 0 {
			m.err = fmt.Errorf("amount must be positive")
			return m, nil
		}
		m.entries = append(m.entries, entryLine{account: m.account, isDebit: m.isDebit, amount: minor})
		m.err = nil
		m.moreCursor = 0
		if len(m.entries) >= 2 && m.imbalance() == 0 {
			m.moreCursor = 1
		}
		m.step = jeStepEntryMore
		return m, nil
	}
	var cmd tea.Cmd
	m.amountInput, cmd = m.amountInput.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateEntryMore(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		m.moreCursor = 1 - m.moreCursor
	case key.Matches(msg, keys.Enter):
		if m.moreCursor == 0 {
			m.step = jeStepEntryAccount
			m.accountInput.SetValue("")
			m.accountInput.Focus()
			m.err = nil
			return m, nil
		}
		if len(m.entries) < 2 {
			m.err = fmt.Errorf("need at least 2 entries")
			m.moreCursor = 0
			return m, nil
		}
		if m.imbalance() != 0 {
			m.err = fmt.Errorf("entries do not balance, add more entries")
			m.moreCursor = 0
			return m, nil
		}
		m.err = nil
		m.step = jeStepConfirm
	}
	return m, nil
}

func (m journalEntryModel) updateConfirm(msg tea.KeyMsg, c *client.Client) (journalEntryModel, tea.Cmd) {
	post := false
	switch msg.String() {
	case "p", "P":
		post = true
	case "y", "Y", "enter":
	case "n", "N":
		m.cancelled = true
		return m, nil
	default:
		return m, nil
	}

	req := m.request()
	return m, func() tea.Msg {
		ctx := context.Background()
		txn, err := c.CreateTransaction(ctx, req)
		if err != nil || !post {
			return txnCreatedMsg{txn: txn, err: err}
		}
		posted, err := c.PostTransaction(ctx, string(txn.ID))
		if err != nil {
			return txnCreatedMsg{txn: txn, err: fmt.Errorf("created %s but posting failed: %w", txn.Number, err)}
		}
		return txnCreatedMsg{txn: posted, posted: true}
	}
}

func (m *journalEntryModel) request() ledger.TransactionRequest {
	req := ledger.TransactionRequest{
		Type:         "JOURNAL",
		Description:  strings.TrimSpace(m.description.Value()),
		Currency:     m.currency,
		SourceSystem: "tui",
	}
	for _, e := range m.entries {
		er := ledger.EntryRequest{AccountID: e.account.ID}
		if e.isDebit {
			er.DebitAmount = e.amount
			req.TotalAmount += e.amount
		} else {
			er.CreditAmount = e.amount
		}
		req.Entries = append(req.Entries, er)
	}
	return req
}

func (m *journalEntryModel) lookup(code string) (ledger.Account, bool) {
	for _, a := range m.accounts {
		if strings.EqualFold(a.Code, code) {
			return a, true
		}
	}
	return ledger.Account{}, false
}

func (m *journalEntryModel) lastWasDebit() bool {
	if len(m.entries) == 0 {
		return false
	}
	return m.entries[len(m.entries)-1].isDebit
}

// imbalance is debits minus credits so far.
func (m *journalEntryModel) imbalance() int64 {
	var diff int64
	for _, e := range m.entries {
		if e.isDebit {
			diff += e.amount
		} else {
			diff -= e.amount
		}
	}
	return diff
}

func (m *journalEntryModel) balanceSummary() string {
	var debits, credits int64
	for _, e := range m.entries {
		if e.isDebit {
			debits += e.amount
		} else {
			credits += e.amount
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  Debits:  %s %s\n", ledger.FormatAmount(debits, m.currency), m.currency))
	b.WriteString(fmt.Sprintf("  Credits: %s %s\n", ledger.FormatAmount(credits, m.currency), m.currency))

	switch diff := debits - credits; {
	case diff == 0:
		b.WriteString(successStyle.Render("  BALANCED"))
	case diff > 0:
		b.WriteString(errorStyle.Render("  UNBALANCED: over-debited " + ledger.FormatAmount(diff, m.currency)))
	default:
		b.WriteString(errorStyle.Render("  UNBALANCED: over-credited " + ledger.FormatAmount(-diff, m.currency)))
	}
	return b.String()
}

func (m *journalEntryModel) entryTable() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-4s %-10s %-26s %14s\n", "SIDE", "ACCOUNT", "NAME", "AMOUNT"))
	for _, e := range m.entries {
		side := "DR"
		if !e.isDebit {
			side = "CR"
		}
		name := e.account.Name
		if len(name) > 24 {
			name = name[:24] + ".."
		}
		b.WriteString(fmt.Sprintf("%-4s %-10s %-26s %14s\n", side, e.account.Code, name, ledger.FormatAmount(e.amount, m.currency)))
	}
	return b.String()
}

func (m *journalEntryModel) view() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("New Journal Entry (" + m.currency + ")"))
	b.WriteString("\n\n")

	if len(m.entries) > 0 && m.step != jeStepConfirm {
		b.WriteString(dimStyle.Render("  Entries so far:") + "\n")
		for _, row := range strings.Split(strings.TrimRight(m.entryTable(), "\n"), "\n") {
			b.WriteString("    " + row + "\n")
		}
		b.WriteString("\n")
		b.WriteString(m.balanceSummary())
		b.WriteString("\n\n")
	}

	switch m.step {
	case jeStepDescription:
		b.WriteString("  Enter transaction description:\n\n")
		b.WriteString("  " + m.description.View() + "\n")

	case jeStepEntryAccount:
		b.WriteString(fmt.Sprintf("  Entry #%d, enter account code:\n\n", len(m.entries)+1))
		b.WriteString("  " + m.accountInput.View() + "\n")

		if len(m.accounts) > 0 {
			b.WriteString("\n" + dimStyle.Render("  Active accounts:") + "\n")
			for _, a := range m.accounts {
				name := a.Name
				if len(name) > 30 {
					name = name[:30] + ".."
				}
				b.WriteString(dimStyle.Render(fmt.Sprintf("    %-8s %-32s %s", a.Code, name, a.Type)) + "\n")
			}
		}

	case jeStepEntryType:
		b.WriteString(fmt.Sprintf("  Account: %s %s\n", m.account.Code, m.account.Name))
		b.WriteString("  Select entry side:\n\n")
		if m.isDebit {
			b.WriteString(selectedStyle.Render("  > Debit (DR)") + "\n")
			b.WriteString("    Credit (CR)\n")
		} else {
			b.WriteString("    Debit (DR)\n")
			b.WriteString(selectedStyle.Render("  > Credit (CR)") + "\n")
		}

	case jeStepEntryAmount:
		side := "Debit"
		if !m.isDebit {
			side = "Credit"
		}
		b.WriteString(fmt.Sprintf("  Account: %s | %s\n", m.account.Code, side))
		b.WriteString(fmt.Sprintf("  Enter amount in %s:\n\n", m.currency))
		b.WriteString("  " + m.amountInput.View() + "\n")

	case jeStepEntryMore:
		options := []string{"Add another entry", "Done, review and submit"}
		if len(m.entries) < 2 {
			options[1] = "Done (need at least 2 entries)"
		} else if m.imbalance() != 0 {
			options[1] = "Done (entries must balance first)"
		}

		b.WriteString("  What next?\n\n")
		for i, opt := range options {
			if i == m.moreCursor {
				b.WriteString(selectedStyle.Render("  > "+opt) + "\n")
			} else {
				b.WriteString(fmt.Sprintf("    %s\n", opt))
			}
		}

	case jeStepConfirm:
		b.WriteString("  Review journal entry:\n\n")

		var summary strings.Builder
		if d := strings.TrimSpace(m.description.Value()); d != "" {
			summary.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Description:"), d))
		}
		summary.WriteString(m.entryTable())

		b.WriteString(boxStyle.Render(summary.String()))
		b.WriteString("\n\n")
		b.WriteString("  y: create pending   p: create and post   n: discard\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("  ESC to cancel"))
	return b.String()
}
