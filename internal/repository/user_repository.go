package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/openlib/library-backend/internal/model"
)

// UserRepo provides data access to the users table. Emails and
// usernames are normalized to lower case before hitting the database.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, username, first_name, last_name, password_hash,
	is_active, role, phone, address, created_at, updated_at`

func scanUser(scan func(dest ...any) error) (model.User, error) {
	var u model.User
	var phone, address sql.NullString
	err := scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsActive, &u.Role, &phone, &address, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Phone = strPtr(phone)
	u.Address = strPtr(address)
	return u, nil
}

// Create inserts a user and populates its ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, username, first_name, last_name, password_hash,
			is_active, role, phone, address)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		u.IsActive, u.Role, u.Phone, u.Address)
	if err != nil {
		switch {
		case isDuplicate(err, "email"):
			return ErrDuplicateEmail
		case isDuplicate(err, "username"):
			return ErrDuplicateUsername
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	created, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = created
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=? LIMIT 1`, id).Scan)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=? LIMIT 1`, email).Scan)
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	return scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username=? LIMIT 1`, username).Scan)
}

// List returns users ordered by id, optionally filtered by role.
func (r *UserRepo) List(ctx context.Context, role model.Role, skip, limit int) ([]model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		q += " WHERE role = ?"
		args = append(args, role)
	}
	q += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, pageLimit(limit), skip)
	return r.queryUsers(ctx, q, args...)
}

// Search matches the query as a substring of email, username or name.
func (r *UserRepo) Search(ctx context.Context, query string, limit int) ([]model.User, error) {
	like := "%" + strings.ToLower(query) + "%"
	return r.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email LIKE ? OR username LIKE ?
		    OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?
		 ORDER BY id LIMIT ?`,
		like, like, like, like, pageLimit(limit))
}

// Update rewrites a user's profile fields, active flag and role.
// The password hash is changed only through UpdatePassword.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET email=?, username=?, first_name=?, last_name=?,
			is_active=?, role=?, phone=?, address=?
		 WHERE id=?`,
		u.Email, u.Username, u.FirstName, u.LastName,
		u.IsActive, u.Role, u.Phone, u.Address, u.ID)
	if err != nil {
		switch {
		case isDuplicate(err, "email"):
			return ErrDuplicateEmail
		case isDuplicate(err, "username"):
			return ErrDuplicateUsername
		}
		return err
	}
	updated, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = updated
	return nil
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=? WHERE id=?`, hash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRole changes a user's role.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role model.Role) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET role=? WHERE id=?`, role, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a user row. The caller is responsible for refusing
// deletion while the user still has unreturned loans.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates user counters in a single round trip.
func (r *UserRepo) Stats(ctx context.Context) (model.UserStats, error) {
	var s model.UserStats
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(is_active),0),
			COALESCE(SUM(role='admin'),0),
			COALESCE(SUM(role='librarian'),0),
			COALESCE(SUM(role='member'),0)
		 FROM users`).
		Scan(&s.TotalUsers, &s.ActiveUsers, &s.AdminCount, &s.LibrarianCount, &s.MemberCount)
	return s, err
}

func (r *UserRepo) queryUsers(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
