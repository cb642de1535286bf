package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/simonvc/chainledger/internal/client"
)

type mode int

const (
	modeAccountList mode = iota
	modeAccountDetail
	modeTransactionList
	modeTransactionDetail
	modeTrialBalance
	modeChain
	modeWizard
	modeJournalEntry
)

var tabModes = []mode{modeAccountList, modeTransactionList, modeTrialBalance, modeChain}

func tabLabel(m mode) string {
	switch m {
	case modeAccountList:
		return "Accounts"
	case modeTransactionList:
		return "Transactions"
	case modeTrialBalance:
		return "Trial Balance"
	case modeChain:
		return "Chain"
	default:
		return ""
	}
}

type App struct {
	client        *client.Client
	currency      string
	mode          mode
	tabIndex      int
	width, height int
	err           error
	statusMsg     string

	accountList   accountListModel
	accountDetail accountDetailModel
	txnList       txnListModel
	txnDetail     txnDetailModel
	trialBalance  trialBalanceModel
	chain         chainModel
	wizard        wizardModel
	journalEntry  journalEntryModel
}

// NewApp builds the terminal UI. Amounts are shown in currency.
func NewApp(c *client.Client, currency string) *App {
	app := &App{
		client:   c,
		currency: currency,
		mode:     modeAccountList,
	}
	app.accountDetail.currency = currency
	app.trialBalance.currency = currency
	return app
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.accountList.init(a.client),
		a.txnList.init(a.client),
		a.trialBalance.init(a.client),
		a.chain.init(a.client),
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.accountList.width = msg.Width
		a.accountList.height = msg.Height - 6
		a.txnList.width = msg.Width
		a.txnList.height = msg.Height - 6
		a.trialBalance.width = msg.Width
		a.trialBalance.height = msg.Height - 6
		a.accountDetail.width = msg.Width
		a.txnDetail.width = msg.Width
		a.chain.width = msg.Width
		a.wizard.width = msg.Width
		a.journalEntry.width = msg.Width
		return a, nil
	}

	// Loads fire concurrently from Init, so route results to their sub-model
	// whatever the active mode.
	switch typedMsg := msg.(type) {
	case accountsLoadedMsg:
		var cmd tea.Cmd
		a.accountList, cmd = a.accountList.update(msg)
		return a, cmd
	case txnsLoadedMsg:
		var cmd tea.Cmd
		a.txnList, cmd = a.txnList.update(msg)
		return a, cmd
	case trialBalanceLoadedMsg:
		var cmd tea.Cmd
		a.trialBalance, cmd = a.trialBalance.update(msg)
		return a, cmd
	case chainVerifiedMsg:
		var cmd tea.Cmd
		a.chain, cmd = a.chain.update(msg)
		return a, cmd
	case accountDetailLoadedMsg:
		var cmd tea.Cmd
		a.accountDetail, cmd = a.accountDetail.update(msg)
		return a, cmd
	case txnDetailLoadedMsg:
		var cmd tea.Cmd
		a.txnDetail, cmd = a.txnDetail.update(msg, a.client)
		return a, cmd
	case accountDeactivateConfirmedMsg:
		return a, func() tea.Msg {
			_, err := a.client.DeactivateAccount(context.Background(), typedMsg.id)
			return accountDeactivatedMsg{code: typedMsg.code, err: err}
		}
	case accountDeactivatedMsg:
		a.accountList, _ = a.accountList.update(msg)
		if typedMsg.err != nil {
			return a, nil
		}
		a.statusMsg = "Account " + typedMsg.code + " deactivated"
		return a, a.accountList.init(a.client)
	case txnActionMsg:
		a.txnDetail, _ = a.txnDetail.update(msg, a.client)
		if typedMsg.err != nil {
			return a, nil
		}
		a.statusMsg = "Transaction " + typedMsg.number + " " + typedMsg.verb
		return a, tea.Batch(
			a.txnDetail.init(a.client, typedMsg.id),
			a.txnList.init(a.client),
			a.trialBalance.init(a.client),
			a.chain.init(a.client),
		)
	}

	// Modal modes: delegate ALL message types (not just keys)
	if a.mode == modeWizard {
		var cmd tea.Cmd
		a.wizard, cmd = a.wizard.update(msg, a.client)
		if a.wizard.done {
			a.mode = modeAccountList
			a.statusMsg = a.wizard.statusMsg
			return a, a.accountList.init(a.client)
		}
		if a.wizard.cancelled {
			a.mode = modeAccountList
			a.statusMsg = "Account creation cancelled"
		}
		return a, cmd
	}

	if a.mode == modeJournalEntry {
		var cmd tea.Cmd
		a.journalEntry, cmd = a.journalEntry.update(msg, a.client)
		if a.journalEntry.done {
			a.mode = modeTransactionList
			a.statusMsg = a.journalEntry.statusMsg
			return a, tea.Batch(
				a.txnList.init(a.client),
				a.trialBalance.init(a.client),
				a.chain.init(a.client),
			)
		}
		if a.journalEntry.cancelled {
			a.mode = modeTransactionList
			a.statusMsg = "Journal entry discarded"
		}
		return a, cmd
	}

	// Inline prompts take every key
	if a.mode == modeAccountList && a.accountList.confirming() {
		var cmd tea.Cmd
		a.accountList, cmd = a.accountList.update(msg)
		return a, cmd
	}
	if a.mode == modeTransactionDetail && a.txnDetail.reversing {
		var cmd tea.Cmd
		a.txnDetail, cmd = a.txnDetail.update(msg, a.client)
		return a, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit

		case key.Matches(msg, keys.Tab):
			a.tabIndex = (a.tabIndex + 1) % len(tabModes)
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = ""
			return a, a.refreshTab()

		case key.Matches(msg, keys.ShiftTab):
			a.tabIndex = (a.tabIndex - 1 + len(tabModes)) % len(tabModes)
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = ""
			return a, a.refreshTab()

		case key.Matches(msg, keys.Refresh):
			return a, a.refreshTab()

		case key.Matches(msg, keys.Escape):
			switch a.mode {
			case modeAccountDetail:
				a.mode = modeAccountList
			case modeTransactionDetail:
				a.mode = modeTransactionList
			}
			return a, nil

		case key.Matches(msg, keys.New):
			if a.mode == modeAccountList {
				a.mode = modeWizard
				a.wizard = newWizard()
				return a, nil
			}

		case key.Matches(msg, keys.NewTxn):
			if a.mode == modeTransactionList {
				a.mode = modeJournalEntry
				a.journalEntry = newJournalEntry(a.currency)
				return a, a.journalEntry.loadAccounts(a.client)
			}

		case key.Matches(msg, keys.Filter):
			if a.mode == modeTransactionList {
				a.txnList.cycleFilter()
				return a, a.txnList.init(a.client)
			}

		case key.Matches(msg, keys.Verify):
			if a.mode == modeChain {
				return a, a.chain.init(a.client)
			}

		case key.Matches(msg, keys.Enter):
			switch a.mode {
			case modeAccountList:
				if acctID := a.accountList.selectedID(); acctID != "" {
					a.mode = modeAccountDetail
					return a, a.accountDetail.init(a.client, acctID)
				}
				return a, nil
			case modeTransactionList:
				if txnID := a.txnList.selectedID(); txnID != "" {
					a.mode = modeTransactionDetail
					return a, a.txnDetail.init(a.client, txnID)
				}
				return a, nil
			}
		}
	}

	// Delegate update to active sub-model
	var cmd tea.Cmd
	switch a.mode {
	case modeAccountList:
		a.accountList, cmd = a.accountList.update(msg)
	case modeAccountDetail:
		a.accountDetail, cmd = a.accountDetail.update(msg)
	case modeTransactionList:
		a.txnList, cmd = a.txnList.update(msg)
	case modeTransactionDetail:
		a.txnDetail, cmd = a.txnDetail.update(msg, a.client)
	case modeTrialBalance:
		a.trialBalance, cmd = a.trialBalance.update(msg)
	case modeChain:
		a.chain, cmd = a.chain.update(msg)
	}
	return a, cmd
}

func (a *App) refreshTab() tea.Cmd {
	switch a.mode {
	case modeAccountList:
		return a.accountList.init(a.client)
	case modeTransactionList:
		return a.txnList.init(a.client)
	case modeTrialBalance:
		return a.trialBalance.init(a.client)
	case modeChain:
		return a.chain.init(a.client)
	}
	return nil
}

func (a *App) helpText() string {
	switch a.mode {
	case modeAccountList:
		return "tab:switch  enter:select  n:new  d:deactivate  q:quit"
	case modeTransactionList:
		return "tab:switch  enter:select  t:new txn  f:filter  q:quit"
	case modeTransactionDetail:
		return "p:post  r:reverse  c:cancel  esc:back  q:quit"
	case modeChain:
		return "tab:switch  v:verify  q:quit"
	default:
		return "tab:switch  esc:back  ctrl+r:refresh  q:quit"
	}
}

func (a *App) View() string {
	// Tab bar
	tabs := ""
	for i, m := range tabModes {
		label := tabLabel(m)
		if i == a.tabIndex && a.mode != modeWizard && a.mode != modeJournalEntry {
			tabs += activeTabStyle.Render(label)
		} else {
			tabs += inactiveTabStyle.Render(label)
		}
		if i < len(tabModes)-1 {
			tabs += " "
		}
	}

	var content string
	switch a.mode {
	case modeAccountList:
		content = a.accountList.view()
	case modeAccountDetail:
		content = a.accountDetail.view()
	case modeTransactionList:
		content = a.txnList.view()
	case modeTransactionDetail:
		content = a.txnDetail.view()
	case modeTrialBalance:
		content = a.trialBalance.view()
	case modeChain:
		content = a.chain.view()
	case modeWizard:
		content = a.wizard.view()
	case modeJournalEntry:
		content = a.journalEntry.view()
	}

	status := ""
	if a.statusMsg != "" {
		status = successStyle.Render(a.statusMsg)
	}
	if a.err != nil {
		status = errorStyle.Render(a.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		tabs,
		"",
		content,
		"",
		status,
		dimStyle.Render(a.helpText()),
	)
}
