package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// MySQLStore is a MySQL implementation of the TokenStore interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL token store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS oauth_tokens (
			account VARCHAR(255) PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Load retrieves the token stored for an account
func (s *MySQLStore) Load(ctx context.Context, account string) (*oauth2.Token, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM oauth_tokens WHERE account = ?
	`, account).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to query token: %w", err)
	}
	return decodeToken([]byte(data))
}

// Save stores or replaces the token for an account
func (s *MySQLStore) Save(ctx context.Context, account string, token *oauth2.Token) error {
	data, err := encodeToken(token)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (account, token, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			token = VALUES(token),
			updated_at = VALUES(updated_at)
	`, account, string(data), time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Debug("Stored token in MySQL", zap.String("account", account))
	return nil
}

// Delete removes the token for an account
func (s *MySQLStore) Delete(ctx context.Context, account string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE account = ?`, account); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Stop closes the database connection
func (s *MySQLStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
