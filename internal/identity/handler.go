package identity

import (
	"encoding/json"
	"net/http"

	"github.com/askpaper/askpaper/internal/domain"
	"github.com/askpaper/askpaper/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service        *Service
	validator      *validator.Validate
	cookieSettings httputil.CookieSettings
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service, cookieSettings httputil.CookieSettings) *Handler {
	return &Handler{
		service:        service,
		validator:      validator.New(),
		cookieSettings: cookieSettings,
	}
}

// RegisterRoutes registers public identity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Patch("/", h.UpdateUser)
		r.Delete("/", h.DeleteUser)
	})
}

// RegisterAdminRoutes registers routes restricted to the admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/bulk-delete", h.BulkDeleteUsers)
		r.Put("/{id}/role", h.UpdateRole)
	})
}

// UserResponse is the sanitized user representation. The password hash
// never leaves the service.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

func toUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.Unix(),
	}
}

// RegisterRequest represents registration request body.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin moderator"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, toUserResponse(user))
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents login response. The raw access token is
// included in the body for clients that cannot use cookies.
type LoginResponse struct {
	Success     bool         `json:"success"`
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), LoginInput(req))
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.SetAccessCookie(w, tokens.AccessToken, h.cookieSettings)
	httputil.SetRefreshCookie(w, tokens.RefreshToken, h.cookieSettings)

	httputil.JSON(w, http.StatusOK, LoginResponse{
		Success:     true,
		AccessToken: tokens.AccessToken,
		User:        toUserResponse(user),
	})
}

// Logout handles POST /auth/logout. It unconditionally clears both auth
// cookies and succeeds even for unauthenticated callers.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	httputil.ClearAuthCookies(w, h.cookieSettings)
	httputil.Success(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r.Context())
	if user == nil {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	httputil.Success(w, http.StatusOK, toUserResponse(user))
}

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, toUserResponse(user))
}

// UpdateUserRequest represents a partial user update. Omitted fields and
// fields sent as null are both left unchanged.
type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=1"`
	FullName *string `json:"full_name" validate:"omitempty,min=1"`
	Role     *string `json:"role" validate:"omitempty,oneof=user admin moderator"`
}

// UpdateUser handles PATCH /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		input.Role = &role
	}

	user, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, toUserResponse(user))
}

// DeleteUser handles DELETE /users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{"message": "user deleted successfully"})
}

// ListUsers handles GET /admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, toUserResponse(&users[i]))
	}
	httputil.Success(w, http.StatusOK, responses)
}

// BulkDeleteRequest represents the admin bulk-delete request body.
type BulkDeleteRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1"`
}

// BulkDeleteResponse reports how many records were removed.
type BulkDeleteResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// BulkDeleteUsers handles POST /admin/users/bulk-delete.
func (h *Handler) BulkDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	count, err := h.service.BulkDeleteUsers(r.Context(), req.UserIDs)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, BulkDeleteResponse{DeletedCount: count})
}

// UpdateRoleRequest represents the admin role assignment body.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin moderator"`
}

// UpdateRole handles PUT /admin/users/{id}/role.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "id"), domain.Role(req.Role))
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrUserNotFound, Status: http.StatusNotFound},
		{Error: ErrEmailExists, Status: http.StatusConflict},
		{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		{Error: ErrInvalidToken, Status: http.StatusUnauthorized},
		{Error: ErrInvalidRole, Status: http.StatusBadRequest},
	})
}
