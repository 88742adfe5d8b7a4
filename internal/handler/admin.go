package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"carpool/internal/service"
)

// AdminHandler serves operator endpoints. Routes are mounted behind
// middleware.RequireRole(auth.RoleAdmin).
type AdminHandler struct {
	walletService *service.WalletService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(walletService *service.WalletService) *AdminHandler {
	return &AdminHandler{walletService: walletService}
}

// TopUpRequest is the HTTP request body for a top-up. Amount is a decimal
// string so no precision is lost in transit.
type TopUpRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// TopUpWallet handles POST /v1/admin/wallets/:user_id/topup
func (h *AdminHandler) TopUpWallet(c *gin.Context) {
	userID := c.Param("user_id")

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondBadRequest(c, "amount must be a decimal string")
		return
	}

	wallet, err := h.walletService.TopUp(c.Request.Context(), userID, amount, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}
