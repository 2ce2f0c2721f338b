package service

import (
	"context"
	"time"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/utils"
)

// UserStore is the storage contract of the account service.
// Implemented by repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	List(ctx context.Context, role model.Role, skip, limit int) ([]model.User, error)
	Search(ctx context.Context, query string, limit int) ([]model.User, error)
	Update(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	SetRole(ctx context.Context, id uint64, role model.Role) error
	Delete(ctx context.Context, id uint64) error
	Stats(ctx context.Context) (model.UserStats, error)
}

// UserService manages accounts. Password hashes never leave this
// layer in responses; the User JSON tags keep the hash field hidden.
type UserService struct {
	users UserStore
	loans LoanCounter
	cache cache.Store
	cost  int // bcrypt work factor for new hashes
}

// NewUserService wires the account service. bcryptCost <= 0 selects
// the default work factor.
func NewUserService(users UserStore, loans LoanCounter, store cache.Store, bcryptCost int) *UserService {
	if bcryptCost <= 0 {
		bcryptCost = utils.DefaultBcryptCost
	}
	return &UserService{users: users, loans: loans, cache: store, cost: bcryptCost}
}

// CreateUserInput carries the fields accepted at account creation.
type CreateUserInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
	Role      model.Role
	Phone     *string
	Address   *string
}

// Create registers an account with a bcrypt-hashed password. The role
// defaults to member; callers enforce who may assign staff roles.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (model.User, error) {
	if in.Email == "" || in.Username == "" || in.Password == "" {
		return model.User{}, Errf(CodeInvalidInput, "email, username and password are required")
	}
	if len(in.Password) < 8 {
		return model.User{}, Errf(CodeInvalidInput, "password must be at least 8 characters")
	}
	role := in.Role
	if role == "" {
		role = model.RoleMember
	}
	if !role.Valid() {
		return model.User{}, Errf(CodeInvalidInput, "unknown role %q", role)
	}
	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		Email:        in.Email,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		IsActive:     true,
		Role:         role,
		Phone:        in.Phone,
		Address:      in.Address,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return model.User{}, mapStoreErr(err)
	}
	s.cache.DeleteByPrefix(ctx, cache.UsersPrefix)
	return u, nil
}

// Get fetches one account, read-through cached by id.
func (s *UserService) Get(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	key := cache.UserKey(id)
	if s.cache.Get(ctx, key, &u) {
		return u, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	s.cache.Set(ctx, key, u, 0)
	return u, nil
}

// GetByEmail fetches one account by email. Used by login; not cached
// because the password check must see the current hash.
func (s *UserService) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	return u, nil
}

// GetByUsername fetches one account by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	return u, nil
}

// List returns accounts, optionally filtered by role.
func (s *UserService) List(ctx context.Context, role model.Role, skip, limit int) ([]model.User, error) {
	if role != "" && !role.Valid() {
		return nil, Errf(CodeInvalidInput, "unknown role %q", role)
	}
	return s.users.List(ctx, role, skip, limit)
}

// Search matches the query against email, username and names.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]model.User, error) {
	if query == "" {
		return nil, Errf(CodeInvalidInput, "search query is required")
	}
	return s.users.Search(ctx, query, limit)
}

// Update rewrites an account's profile fields, active flag and role.
func (s *UserService) Update(ctx context.Context, u *model.User) error {
	if !u.Role.Valid() {
		return Errf(CodeInvalidInput, "unknown role %q", u.Role)
	}
	if err := s.users.Update(ctx, u); err != nil {
		return mapStoreErr(err)
	}
	s.invalidate(ctx, u.ID)
	return nil
}

// ChangePassword verifies the current password before storing a new
// bcrypt hash. Staff resets pass skipVerify to bypass the check.
func (s *UserService) ChangePassword(ctx context.Context, id uint64, current, next string, skipVerify bool) error {
	if len(next) < 8 {
		return Errf(CodeInvalidInput, "password must be at least 8 characters")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if !skipVerify && !utils.VerifyPassword(u.PasswordHash, current) {
		return Errf(CodeInvalidInput, "current password is incorrect")
	}
	hash, err := utils.HashPassword(next, s.cost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return mapStoreErr(err)
	}
	s.invalidate(ctx, id)
	return nil
}

// SetRole changes an account's role.
func (s *UserService) SetRole(ctx context.Context, id uint64, role model.Role) error {
	if !role.Valid() {
		return Errf(CodeInvalidInput, "unknown role %q", role)
	}
	if err := s.users.SetRole(ctx, id, role); err != nil {
		return mapStoreErr(err)
	}
	s.invalidate(ctx, id)
	return nil
}

// Delete removes an account. Refused while the user still holds
// unreturned loans.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	n, err := s.loans.ActiveCountByUser(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return Errf(CodeHasActiveLoans, "user has %d unreturned loan(s)", n)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.invalidate(ctx, id)
	return nil
}

// Statistics returns aggregate account counters, cached briefly.
func (s *UserService) Statistics(ctx context.Context) (model.UserStats, error) {
	var stats model.UserStats
	if s.cache.Get(ctx, cache.UserStatsKey, &stats) {
		return stats, nil
	}
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return model.UserStats{}, err
	}
	s.cache.Set(ctx, cache.UserStatsKey, stats, 5*time.Minute)
	return stats, nil
}

func (s *UserService) invalidate(ctx context.Context, id uint64) {
	s.cache.Delete(ctx, cache.UserKey(id), cache.UserLoansKey(id))
	s.cache.DeleteByPrefix(ctx, cache.UsersPrefix)
}
