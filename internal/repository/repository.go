// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	cash := 0
	if tx.Cash {
		cash = 1
	}

	query := `
		INSERT INTO transactions (
			id, account_number, ts, amount, type,
			recipient_account, recipient_bank, recipient_country,
			description, cash, customer_id, account_created, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.AccountNumber, tx.Timestamp, tx.Amount, tx.Type,
		tx.RecipientAccount, tx.RecipientBank, tx.RecipientCountry,
		tx.Description, cash, tx.CustomerID, tx.AccountCreated,
		time.Now().UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, account_number, ts, amount, type,
			   recipient_account, recipient_bank, recipient_country,
			   description, cash, customer_id, account_created
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ListTransactionsByCustomer retrieves a customer's transactions recorded
// at or after since, most recent first.
func (r *SQLRepository) ListTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT id, account_number, ts, amount, type,
			   recipient_account, recipient_bank, recipient_country,
			   description, cash, customer_id, account_created
		FROM transactions
		WHERE customer_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListRecentTransactions retrieves the most recently stored transactions.
func (r *SQLRepository) ListRecentTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, account_number, ts, amount, type,
			   recipient_account, recipient_bank, recipient_country,
			   description, cash, customer_id, account_created
		FROM transactions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var cash int
	if err := row.Scan(
		&tx.ID, &tx.AccountNumber, &tx.Timestamp, &tx.Amount, &tx.Type,
		&tx.RecipientAccount, &tx.RecipientBank, &tx.RecipientCountry,
		&tx.Description, &cash, &tx.CustomerID, &tx.AccountCreated,
	); err != nil {
		return nil, err
	}
	tx.Cash = cash == 1
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// SaveProfileReport upserts a customer's derived profile report.
func (r *SQLRepository) SaveProfileReport(ctx context.Context, report *domain.ProfileReport) error {
	if report.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO profile_reports (customer_id, report, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			report = excluded.report,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.CustomerID, string(data), time.Now().UTC(),
	)
	return err
}

// GetProfileReport retrieves a customer's stored profile report.
func (r *SQLRepository) GetProfileReport(ctx context.Context, customerID string) (*domain.ProfileReport, error) {
	query := `SELECT report FROM profile_reports WHERE customer_id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.ProfileReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("failed to parse profile report: %w", err)
	}
	return &report, nil
}

// SaveValidation stores a terminal validation result.
func (r *SQLRepository) SaveValidation(ctx context.Context, result *domain.ValidationResult) error {
	if result.ID == "" {
		return fmt.Errorf("%w: validation id is required", ErrInvalidInput)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	suspicious := 0
	if result.Suspicious() {
		suspicious = 1
	}

	query := `
		INSERT INTO validations (id, tx_id, customer_id, suspicious, result, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.ID, result.Transaction.ID, result.Transaction.CustomerID,
		suspicious, string(data), result.Timestamp,
	)
	return err
}

// GetValidation retrieves a validation result by ID.
func (r *SQLRepository) GetValidation(ctx context.Context, resultID string) (*domain.ValidationResult, error) {
	query := `SELECT result FROM validations WHERE id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), resultID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.ValidationResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to parse validation result: %w", err)
	}
	return &result, nil
}

// AppendAnalysis appends one record to a customer's analysis history.
func (r *SQLRepository) AppendAnalysis(ctx context.Context, record *domain.AnalysisRecord) error {
	if record.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}

	verdict, err := json.Marshal(record.Verdict)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_history (customer_id, ts, verdict)
		VALUES (?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		record.CustomerID, record.Timestamp, string(verdict),
	)
	return err
}

// ListAnalyses retrieves a customer's analysis history, oldest first.
func (r *SQLRepository) ListAnalyses(ctx context.Context, customerID string) ([]*domain.AnalysisRecord, error) {
	query := `
		SELECT customer_id, ts, verdict
		FROM analysis_history
		WHERE customer_id = ?
		ORDER BY ts ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AnalysisRecord
	for rows.Next() {
		var rec domain.AnalysisRecord
		var verdict string
		if err := rows.Scan(&rec.CustomerID, &rec.Timestamp, &verdict); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(verdict), &rec.Verdict); err != nil {
			return nil, fmt.Errorf("failed to parse analysis verdict: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveScreenRule upserts a supplemental screen rule.
func (r *SQLRepository) SaveScreenRule(ctx context.Context, rule *domain.ScreenRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screen_rules (
			id, name, description, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.Reason,
		enabled, now, now,
	)
	return err
}

// ListScreenRules retrieves all enabled screen rules.
func (r *SQLRepository) ListScreenRules(ctx context.Context) ([]*domain.ScreenRule, error) {
	query := `
		SELECT id, name, description, expression, reason, enabled
		FROM screen_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreenRule
	for rows.Next() {
		var rule domain.ScreenRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Reason, &enabled,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
