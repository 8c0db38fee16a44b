package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"cardledger/internal/service"
)

// TransferHandler handles transfer endpoints.
type TransferHandler struct {
	transferService service.TransferService
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(transferService service.TransferService) *TransferHandler {
	return &TransferHandler{transferService: transferService}
}

// TransferRequest represents a transfer request.
type TransferRequest struct {
	SourceCardID      string `json:"source_card_id" validate:"required,uuid"`
	DestinationCardID string `json:"destination_card_id" validate:"required,uuid"`
	Amount            string `json:"amount" validate:"required"`
}

// CreateTransfer godoc
// @Summary Transfer between two of the caller's cards
// @Description Returns the transfer record. A transfer that fails after it was
// @Description recorded is returned as an error; its row stays CANCELLED.
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransferRequest true "Transfer data"
// @Success 201 {object} model.Transfer
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /transfers [post]
func (h *TransferHandler) CreateTransfer(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sourceCardID, err := uuid.Parse(req.SourceCardID)
	if err != nil {
		return badRequest("invalid source_card_id", "INVALID_UUID")
	}
	destinationCardID, err := uuid.Parse(req.DestinationCardID)
	if err != nil {
		return badRequest("invalid destination_card_id", "INVALID_UUID")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return badRequest("invalid amount", "INVALID_AMOUNT")
	}

	transfer, err := h.transferService.Transfer(c.Request().Context(), caller, service.TransferInput{
		SourceCardID:      sourceCardID,
		DestinationCardID: destinationCardID,
		Amount:            amount,
	})
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, transfer)
}

// GetTransfer godoc
// @Summary Get a transfer
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transfer ID"
// @Success 200 {object} model.Transfer
// @Failure 404 {object} errors.ErrorResponse
// @Router /transfers/{id} [get]
func (h *TransferHandler) GetTransfer(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	transfer, err := h.transferService.GetTransfer(c.Request().Context(), caller, id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// ListTransfers godoc
// @Summary List transfers touching the caller's cards
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} service.Page[model.Transfer]
// @Router /transfers [get]
func (h *TransferHandler) ListTransfers(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	transfers, err := h.transferService.ListTransfersForUser(c.Request().Context(), caller, page)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, transfers)
}
