package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/utils"
)

type fakeUsers struct {
	users  map[uint64]model.User
	nextID uint64
}

func newFakeUsers() *fakeUsers { return &fakeUsers{users: map[uint64]model.User{}, nextID: 1} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	for _, other := range f.users {
		if other.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
		if other.Username == u.Username {
			return repository.ErrDuplicateUsername
		}
	}
	u.ID = f.nextID
	f.nextID++
	f.users[u.ID] = *u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) List(_ context.Context, role model.Role, _, _ int) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) Search(context.Context, string, int) ([]model.User, error) { return nil, nil }

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return sql.ErrNoRows
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

func (f *fakeUsers) SetRole(_ context.Context, id uint64, role model.Role) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	f.users[id] = u
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id uint64) error {
	if _, ok := f.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUsers) Stats(context.Context) (model.UserStats, error) {
	return model.UserStats{TotalUsers: int64(len(f.users))}, nil
}

type userFixture struct {
	svc     *UserService
	users   *fakeUsers
	counter *fakeCounter
	store   *memStore
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{
		users:   newFakeUsers(),
		counter: &fakeCounter{byBook: map[uint64]int{}, byUser: map[uint64]int{}},
		store:   newMemStore(),
	}
	// Minimum cost keeps the hashing in these tests fast.
	f.svc = NewUserService(f.users, f.counter, f.store, bcrypt.MinCost)
	return f
}

func memberInput(email, username string) CreateUserInput {
	return CreateUserInput{
		Email:    email,
		Username: username,
		Password: "correct horse battery",
	}
}

func TestUserCreate(t *testing.T) {
	f := newUserFixture(t)

	u, err := f.svc.Create(context.Background(), memberInput("a@example.com", "alice"))
	require.NoError(t, err)

	assert.Equal(t, model.RoleMember, u.Role, "role defaults to member")
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "correct horse battery", u.PasswordHash, "plaintext never stored")
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "correct horse battery"))
}

func TestUserCreateHashCost(t *testing.T) {
	f := newUserFixture(t)

	u, err := f.svc.Create(context.Background(), memberInput("a@example.com", "alice"))
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(u.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost, "hash uses the cost the service was built with")

	// An unset cost selects the default work factor.
	def := NewUserService(newFakeUsers(), f.counter, newMemStore(), 0)
	u, err = def.Create(context.Background(), memberInput("b@example.com", "bob"))
	require.NoError(t, err)

	cost, err = bcrypt.Cost([]byte(u.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultBcryptCost, cost)
}

func TestUserCreateInvalid(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	in := memberInput("", "alice")
	_, err := f.svc.Create(ctx, in)
	assert.True(t, IsCode(err, CodeInvalidInput))

	in = memberInput("a@example.com", "alice")
	in.Password = "short"
	_, err = f.svc.Create(ctx, in)
	assert.True(t, IsCode(err, CodeInvalidInput))

	in = memberInput("a@example.com", "alice")
	in.Role = "superuser"
	_, err = f.svc.Create(ctx, in)
	assert.True(t, IsCode(err, CodeInvalidInput))
}

func TestUserCreateDuplicates(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, memberInput("a@example.com", "alice"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, memberInput("a@example.com", "alice2"))
	assert.True(t, IsCode(err, CodeDuplicateEmail))

	_, err = f.svc.Create(ctx, memberInput("b@example.com", "alice"))
	assert.True(t, IsCode(err, CodeDuplicateUsername))
}

func TestUserChangePassword(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	u, err := f.svc.Create(ctx, memberInput("a@example.com", "alice"))
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, u.ID, "wrong password", "a new password", false)
	assert.True(t, IsCode(err, CodeInvalidInput))

	err = f.svc.ChangePassword(ctx, u.ID, "correct horse battery", "short", false)
	assert.True(t, IsCode(err, CodeInvalidInput))

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "correct horse battery", "a new password", false))
	got, err := f.svc.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(got.PasswordHash, "a new password"))

	// Staff reset bypasses the current-password check.
	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "", "another password", true))
}

func TestUserDeleteGuard(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	u, err := f.svc.Create(ctx, memberInput("a@example.com", "alice"))
	require.NoError(t, err)

	f.counter.byUser[u.ID] = 1
	err = f.svc.Delete(ctx, u.ID)
	assert.True(t, IsCode(err, CodeHasActiveLoans))

	f.counter.byUser[u.ID] = 0
	require.NoError(t, f.svc.Delete(ctx, u.ID))

	_, err = f.svc.Get(ctx, u.ID)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestUserSetRole(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	u, err := f.svc.Create(ctx, memberInput("a@example.com", "alice"))
	require.NoError(t, err)

	assert.True(t, IsCode(f.svc.SetRole(ctx, u.ID, "root"), CodeInvalidInput))
	require.NoError(t, f.svc.SetRole(ctx, u.ID, model.RoleLibrarian))

	got, err := f.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleLibrarian, got.Role)
}
