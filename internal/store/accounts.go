package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/simonvc/chainledger/internal/ledger"
)

const accountColumns = `id, code, name, account_type, parent_id, is_active, description, created_at`

func (s *Store) CreateAccount(ctx context.Context, acct *ledger.Account) error {
	if acct.ID == "" {
		acct.ID = ledger.AccountID(uuid.Must(uuid.NewV7()).String())
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	if err := acct.Validate(); err != nil {
		return err
	}

	var parent any
	if acct.ParentID != "" {
		if _, err := s.GetAccount(ctx, acct.ParentID); err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return fmt.Errorf("%w: %s does not exist", ledger.ErrInvalidParent, acct.ParentID)
			}
			return err
		}
		parent = string(acct.ParentID)
	}

	_, err := s.writer.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(acct.ID), acct.Code, acct.Name, string(acct.Type), parent,
		boolToInt(acct.Active), acct.Description, formatTime(acct.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: accounts.code") {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateAccount, acct.Code)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id))
	return scanAccount(row)
}

func (s *Store) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, filter AccountFilter) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	args := []any{}

	if filter.Type != "" {
		query += ` AND account_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if filter.ParentID != "" {
		query += ` AND parent_id = ?`
		args = append(args, string(filter.ParentID))
	}
	if filter.RootsOnly {
		query += ` AND parent_id IS NULL`
	}
	if filter.NameContains != "" {
		query += ` AND LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(filter.NameContains))+"%")
	}

	query += ` ORDER BY code`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
		}
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		acct, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// DeactivateAccount soft-deletes an account. Its history is kept and it
// can no longer be referenced by new entries.
func (s *Store) DeactivateAccount(ctx context.Context, id ledger.AccountID) error {
	res, err := s.writer.ExecContext(ctx,
		`UPDATE accounts SET is_active = 0 WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountInto(r rowScanner) (*ledger.Account, error) {
	var acct ledger.Account
	var parent sql.NullString
	var active int
	var createdAt string
	if err := r.Scan(&acct.ID, &acct.Code, &acct.Name, &acct.Type, &parent, &active, &acct.Description, &createdAt); err != nil {
		return nil, err
	}
	acct.ParentID = ledger.AccountID(parent.String)
	acct.Active = active == 1
	acct.CreatedAt = parseTime(createdAt)
	return &acct, nil
}

func scanAccount(row *sql.Row) (*ledger.Account, error) {
	acct, err := scanAccountInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return acct, nil
}

func scanAccountRow(rows *sql.Rows) (*ledger.Account, error) {
	acct, err := scanAccountInto(rows)
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}
	return acct, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
