package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/invest/backend/internal/domain/ledger"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/interfaces/http/dto"
)

// LedgerHandler serves read-only ledger queries. Balances are always
// derived from entries; nothing here mutates.
type LedgerHandler struct {
	BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a LedgerHandler
func NewLedgerHandler(service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// RegisterRoutes registers the ledger routes
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	entries := rg.Group("/ledger")
	{
		entries.GET("/balance", h.Balance)
		entries.GET("/entries", h.EntriesByAccount)
		entries.GET("/entries/by-ref/:ref", h.EntriesByExternalRef)
	}
}

// Balance handles GET /ledger/balance?type=escrow&account=...
func (h *LedgerHandler) Balance(c *gin.Context) {
	ledgerType, accountRef, err := ledgerQuery(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	balance, err := h.service.AccountBalance(c.Request.Context(), ledgerType, accountRef)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.BalanceResponse{
		LedgerType: string(ledgerType),
		AccountRef: accountRef,
		Balance:    balance.String(),
	})
}

// EntriesByAccount handles GET /ledger/entries?type=escrow&account=...&limit=50
func (h *LedgerHandler) EntriesByAccount(c *gin.Context) {
	ledgerType, accountRef, err := ledgerQuery(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.service.EntriesByAccount(c.Request.Context(), ledgerType, accountRef, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewLedgerEntryResponses(entries))
}

// EntriesByExternalRef handles GET /ledger/entries/by-ref/:ref
func (h *LedgerHandler) EntriesByExternalRef(c *gin.Context) {
	ref := c.Param("ref")
	if ref == "" {
		h.HandleError(c, shared.NewDomainError(shared.CodeInvalidInput, "External reference is required"))
		return
	}
	entries, err := h.service.EntriesByExternalRef(c.Request.Context(), ref)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewLedgerEntryResponses(entries))
}

func ledgerQuery(c *gin.Context) (ledger.LedgerType, string, error) {
	ledgerType := ledger.LedgerType(c.Query("type"))
	switch ledgerType {
	case ledger.LedgerEscrow, ledger.LedgerPayout:
	default:
		return "", "", shared.NewDomainError(shared.CodeInvalidInput, "Query parameter type must be escrow or payout")
	}
	accountRef := c.Query("account")
	if accountRef == "" {
		return "", "", shared.NewDomainError(shared.CodeInvalidInput, "Query parameter account is required")
	}
	return ledgerType, accountRef, nil
}
