package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"carpool/internal/service"
)

// WalletHandler handles HTTP requests for the caller's wallet.
type WalletHandler struct {
	walletService *service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletService *service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// TransactionResponse is the HTTP representation of a ledger entry.
type TransactionResponse struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   string          `json:"direction"`
	Purpose     string          `json:"purpose"`
	RideID      string          `json:"ride_id,omitempty"`
	RideBookID  string          `json:"ride_book_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// GetWallet handles GET /v1/wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	wallet, err := h.walletService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}

// ListTransactions handles GET /v1/wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		respondBadRequest(c, "invalid limit")
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		respondBadRequest(c, "invalid offset")
		return
	}

	txns, err := h.walletService.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		response = append(response, TransactionResponse{
			ID:          t.ID,
			Amount:      t.Amount,
			Direction:   string(t.Direction),
			Purpose:     string(t.Purpose),
			RideID:      t.RideID,
			RideBookID:  t.RideBookID,
			Description: t.Description,
			CreatedAt:   formatTime(t.CreatedAt),
		})
	}

	respondJSON(c, http.StatusOK, response)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
