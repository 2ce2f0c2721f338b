package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/service"
)

// UserHandler exposes account administration. Listing, searching,
// deleting and role changes are admin-only; profile reads and updates
// are self-or-admin.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

type createUserReq struct {
	Email     string  `json:"email" validate:"required,email"`
	Username  string  `json:"username" validate:"required,min=3,max=64"`
	Password  string  `json:"password" validate:"required,min=8"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Role      string  `json:"role"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

// Create registers an account with an explicit role (admin surface).
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.Create(ctx, service.CreateUserInput{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Role:      model.Role(req.Role),
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// Get returns one account. Members see only themselves.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	uid, role := currentUser(c)
	if id != uid && !role.Staff() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.Get(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// List returns accounts, optionally filtered by role (admin view).
func (h *UserHandler) List(c echo.Context) error {
	skip, limit := pageParams(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx, model.Role(c.QueryParam("role")), skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// Search matches q against email, username and names (admin view).
func (h *UserHandler) Search(c echo.Context) error {
	_, limit := pageParams(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.Search(ctx, c.QueryParam("q"), limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

type updateUserReq struct {
	Email     string  `json:"email" validate:"required,email"`
	Username  string  `json:"username" validate:"required,min=3,max=64"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	IsActive  *bool   `json:"is_active"`
	Role      string  `json:"role"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

// Update rewrites an account's profile. Members may edit their own
// profile but not their role or active flag.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	uid, role := currentUser(c)
	if id != uid && role != model.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	current, err := h.Users.Get(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	u := current
	u.Email = req.Email
	u.Username = req.Username
	u.FirstName = req.FirstName
	u.LastName = req.LastName
	u.Phone = req.Phone
	u.Address = req.Address
	if role == model.RoleAdmin {
		if req.Role != "" {
			u.Role = model.Role(req.Role)
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
	}
	if err := h.Users.Update(ctx, &u); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ChangePassword replaces an account's password. Members verify their
// current password; admins reset without it.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	uid, role := currentUser(c)
	isAdmin := role == model.RoleAdmin
	if id != uid && !isAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	skipVerify := isAdmin && id != uid
	if err := h.Users.ChangePassword(ctx, id, req.CurrentPassword, req.NewPassword, skipVerify); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type setRoleReq struct {
	Role string `json:"role" validate:"required"`
}

// SetRole changes an account's role (admin only).
func (h *UserHandler) SetRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req setRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetRole(ctx, id, model.Role(req.Role)); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes an account without unreturned loans (admin only).
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats returns aggregate account counters (admin view).
func (h *UserHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	stats, err := h.Users.Statistics(ctx)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
