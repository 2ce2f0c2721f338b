package database

import (
	"context"
	"database/sql"
)

// Schema DDL, applied in dependency order. Loans reference users and
// books with RESTRICT so history cannot dangle; refresh tokens cascade
// away with their owner.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		username      VARCHAR(64)  NOT NULL,
		first_name    VARCHAR(100) NOT NULL DEFAULT '',
		last_name     VARCHAR(100) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		role          ENUM('admin','librarian','member') NOT NULL DEFAULT 'member',
		phone         VARCHAR(32)  NULL,
		address       VARCHAR(255) NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS books (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		isbn               VARCHAR(17)  NOT NULL,
		title              VARCHAR(255) NOT NULL,
		author             VARCHAR(255) NOT NULL,
		publisher          VARCHAR(255) NULL,
		publication_year   SMALLINT NULL,
		edition            VARCHAR(64)  NULL,
		description        TEXT NULL,
		category           VARCHAR(100) NULL,
		language           VARCHAR(32)  NOT NULL DEFAULT 'en',
		pages              INT NULL,
		status             ENUM('available','loaned','reserved','maintenance','lost')
		                   NOT NULL DEFAULT 'available',
		location           VARCHAR(64) NULL,
		quantity           INT NOT NULL DEFAULT 1,
		available_quantity INT NOT NULL DEFAULT 1,
		price              DECIMAL(10,2) NULL,
		created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_books_isbn (isbn),
		KEY idx_books_category (category),
		KEY idx_books_author (author),
		CONSTRAINT chk_books_available CHECK (available_quantity >= 0 AND available_quantity <= quantity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS loans (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id       BIGINT UNSIGNED NOT NULL,
		book_id       BIGINT UNSIGNED NOT NULL,
		loan_date     DATETIME NOT NULL,
		due_date      DATETIME NOT NULL,
		return_date   DATETIME NULL,
		status        ENUM('active','returned','overdue','renewed','lost') NOT NULL DEFAULT 'active',
		renewal_count INT NOT NULL DEFAULT 0,
		max_renewals  INT NOT NULL DEFAULT 2,
		fine_amount   DECIMAL(10,2) NOT NULL DEFAULT 0,
		fine_paid     TINYINT(1) NOT NULL DEFAULT 0,
		notes         VARCHAR(500) NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_loans_user (user_id, status),
		KEY idx_loans_book (book_id, status),
		KEY idx_loans_due (status, due_date),
		CONSTRAINT fk_loans_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE RESTRICT,
		CONSTRAINT fk_loans_book FOREIGN KEY (book_id) REFERENCES books (id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// tableNames in drop order (children first).
var tableNames = []string{"refresh_tokens", "loans", "books", "users"}

// Init creates every table that does not exist yet. Idempotent.
func Init(ctx context.Context, db *sql.DB) error {
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// Drop removes all application tables. Destructive; the CLI gates it
// behind an explicit confirmation.
func Drop(ctx context.Context, db *sql.DB) error {
	for _, t := range tableNames {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return err
		}
	}
	return nil
}

// Tables reports which application tables currently exist.
func Tables(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	out := make(map[string]bool, len(tableNames))
	for _, t := range tableNames {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = DATABASE() AND table_name = ?`, t).Scan(&name)
		switch err {
		case nil:
			out[t] = true
		case sql.ErrNoRows:
			out[t] = false
		default:
			return nil, err
		}
	}
	return out, nil
}

// CountRows returns the row count per application table, for the
// backup-info and info commands.
func CountRows(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	out := make(map[string]int64, len(tableNames))
	for _, t := range tableNames {
		var n int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}
