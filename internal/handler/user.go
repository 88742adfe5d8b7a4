package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/auth"
	"carpool/internal/service"
)

// UserHandler handles HTTP requests for users.
type UserHandler struct {
	walletService *service.WalletService
	jwtSecret     string
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(walletService *service.WalletService, jwtSecret string) *UserHandler {
	return &UserHandler{walletService: walletService, jwtSecret: jwtSecret}
}

// RegisterRequest is the HTTP request body for user registration.
type RegisterRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// RegisterResponse is the HTTP response for a new user.
type RegisterResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Phone       string         `json:"phone"`
	Wallet      WalletResponse `json:"wallet"`
	AccessToken string         `json:"access_token"`
}

// Register handles POST /v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	user, wallet, err := h.walletService.RegisterUser(c.Request.Context(), service.RegisterUserRequest{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, auth.RoleUser, h.jwtSecret, auth.AccessTokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, RegisterResponse{
		ID:          user.ID,
		Name:        user.Name,
		Phone:       user.Phone,
		Wallet:      toWalletResponse(wallet),
		AccessToken: token,
	})
}
