package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema initializes the database schema
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		nickname TEXT PRIMARY KEY,
		character_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS dispatches (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		worker TEXT NOT NULL,
		status TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dispatches_created_at ON dispatches(created_at);
	CREATE INDEX IF NOT EXISTS idx_dispatches_worker ON dispatches(worker);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isConstraintViolation reports whether err is a uniqueness failure
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

const accountColumns = `nickname, character_id, session_id, display_name, refresh_token, access_token`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.Nickname, &account.CharacterID, &account.SessionID,
		&account.DisplayName, &account.RefreshToken, &account.AccessToken,
	)
	return account, err
}

// ListAccounts retrieves all accounts ordered by nickname
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY nickname ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// GetAccount retrieves an account by nickname
func (s *SQLiteStorage) GetAccount(ctx context.Context, nickname string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE nickname = ?`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, nickname))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: account %q", models.ErrNotFound, nickname)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// AddAccount creates a new account
func (s *SQLiteStorage) AddAccount(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO accounts (` + accountColumns + `, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		account.Nickname, account.CharacterID, account.SessionID,
		account.DisplayName, account.RefreshToken, account.AccessToken, now, now,
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: account with nickname %q already exists", models.ErrConflict, account.Nickname)
	}
	if err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	return nil
}

// UpdateAccount replaces an account's fields, renaming it when the nickname changes
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, originalNickname string, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	query := `UPDATE accounts SET nickname = ?, character_id = ?, session_id = ?, display_name = ?,
	          refresh_token = ?, access_token = ?, updated_at = ? WHERE nickname = ?`

	result, err := s.db.ExecContext(ctx, query,
		account.Nickname, account.CharacterID, account.SessionID, account.DisplayName,
		account.RefreshToken, account.AccessToken, time.Now(), originalNickname,
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: new nickname %q already exists", models.ErrConflict, account.Nickname)
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %q", models.ErrNotFound, originalNickname)
	}

	return nil
}

// DeleteAccount deletes an account
func (s *SQLiteStorage) DeleteAccount(ctx context.Context, nickname string) error {
	query := `DELETE FROM accounts WHERE nickname = ?`
	result, err := s.db.ExecContext(ctx, query, nickname)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %q", models.ErrNotFound, nickname)
	}
	return nil
}

// ImportAccounts inserts accounts that are not stored yet, in one transaction
func (s *SQLiteStorage) ImportAccounts(ctx context.Context, accounts []models.Account) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT OR IGNORE INTO accounts (` + accountColumns + `, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	imported := 0
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx, query,
			account.Nickname, account.CharacterID, account.SessionID,
			account.DisplayName, account.RefreshToken, account.AccessToken, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import account %q: %w", account.Nickname, err)
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			imported++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return imported, nil
}

// RecordDispatch stores one dispatch attempt
func (s *SQLiteStorage) RecordDispatch(ctx context.Context, record *models.DispatchRecord) error {
	query := `INSERT INTO dispatches (id, account_id, worker, status, status_code, message, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.AccountID, record.Worker, record.Status,
		record.StatusCode, record.Message, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// ListDispatches retrieves the most recent dispatch attempts, newest first
func (s *SQLiteStorage) ListDispatches(ctx context.Context, limit int) ([]*models.DispatchRecord, error) {
	query := `SELECT id, account_id, worker, status, status_code, message, created_at
	          FROM dispatches ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	var records []*models.DispatchRecord
	for rows.Next() {
		record := &models.DispatchRecord{}
		if err := rows.Scan(&record.ID, &record.AccountID, &record.Worker, &record.Status,
			&record.StatusCode, &record.Message, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
