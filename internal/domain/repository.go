// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the persistence collaborator.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) ([]*Transaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]*Transaction, error)

	// Profile reports
	SaveProfileReport(ctx context.Context, report *ProfileReport) error
	GetProfileReport(ctx context.Context, customerID string) (*ProfileReport, error)

	// Validation results
	SaveValidation(ctx context.Context, result *ValidationResult) error
	GetValidation(ctx context.Context, resultID string) (*ValidationResult, error)

	// Analysis history: per-customer, append-only, keyed by timestamp.
	AppendAnalysis(ctx context.Context, record *AnalysisRecord) error
	ListAnalyses(ctx context.Context, customerID string) ([]*AnalysisRecord, error)

	// Supplemental screen rules
	SaveScreenRule(ctx context.Context, rule *ScreenRule) error
	ListScreenRules(ctx context.Context) ([]*ScreenRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
