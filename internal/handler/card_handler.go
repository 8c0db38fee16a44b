package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"cardledger/internal/model"
	"cardledger/internal/service"
)

// CardHandler handles card ledger endpoints.
type CardHandler struct {
	cardService service.CardService
}

// NewCardHandler creates a new card handler.
func NewCardHandler(cardService service.CardService) *CardHandler {
	return &CardHandler{cardService: cardService}
}

// IssueCardRequest represents a card issuance request. Status and balance are
// not accepted; every card starts ACTIVE with 0.00.
type IssueCardRequest struct {
	OwnerID     string `json:"owner_id" validate:"required,uuid"`
	Number      string `json:"number,omitempty" validate:"omitempty,min=12,max=23"`
	HolderName  string `json:"holder_name" validate:"required,max=255"`
	ExpiryYear  int    `json:"expiry_year" validate:"required,min=2000,max=2100"`
	ExpiryMonth int    `json:"expiry_month" validate:"required,min=1,max=12"`
}

// AmountRequest carries a decimal amount as a string.
type AmountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// ChangeStatusRequest represents a status change request.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE BLOCKED"`
}

// IssueCard godoc
// @Summary Issue a card
// @Description Issues an ACTIVE card with a zero balance. Omit number to generate one.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body IssueCardRequest true "Card data"
// @Success 201 {object} model.CardView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/cards [post]
func (h *CardHandler) IssueCard(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req IssueCardRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return badRequest("invalid owner_id", "INVALID_UUID")
	}

	card, err := h.cardService.IssueCard(c.Request().Context(), caller, service.IssueCardInput{
		OwnerID:     ownerID,
		Number:      req.Number,
		HolderName:  req.HolderName,
		ExpiryYear:  req.ExpiryYear,
		ExpiryMonth: req.ExpiryMonth,
	})
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, card)
}

// GetCard godoc
// @Summary Get a card
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Success 200 {object} model.CardView
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /cards/{id} [get]
func (h *CardHandler) GetCard(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	card, err := h.cardService.GetCard(c.Request().Context(), caller, id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, card)
}

// ListMyCards godoc
// @Summary List the caller's cards
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} service.Page[model.CardView]
// @Router /cards [get]
func (h *CardHandler) ListMyCards(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	cards, err := h.cardService.ListCardsForUser(c.Request().Context(), caller, page)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, cards)
}

// ListAllCards godoc
// @Summary List all cards
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "ACTIVE, BLOCKED or EXPIRED"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} service.Page[model.CardView]
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/cards [get]
func (h *CardHandler) ListAllCards(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	status := model.CardStatus(c.QueryParam("status"))
	cards, err := h.cardService.ListAllCards(c.Request().Context(), caller, status, page)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, cards)
}

// ChangeStatus godoc
// @Summary Block or unblock a card
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body ChangeStatusRequest true "Target status"
// @Success 200 {object} model.CardView
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/cards/{id}/status [patch]
func (h *CardHandler) ChangeStatus(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req ChangeStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	card, err := h.cardService.ChangeStatus(c.Request().Context(), caller, id, model.CardStatus(req.Status))
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, card)
}

// DeleteCard godoc
// @Summary Delete an empty card
// @Tags admin
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Success 204
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/cards/{id} [delete]
func (h *CardHandler) DeleteCard(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.cardService.DeleteCard(c.Request().Context(), caller, id); err != nil {
		return fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Deposit godoc
// @Summary Deposit to a card
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body AmountRequest true "Amount"
// @Success 200 {object} model.CardView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /cards/{id}/deposit [post]
func (h *CardHandler) Deposit(c echo.Context) error {
	return h.moveBalance(c, h.cardService.Deposit)
}

// Withdraw godoc
// @Summary Withdraw from a card
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body AmountRequest true "Amount"
// @Success 200 {object} model.CardView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /cards/{id}/withdraw [post]
func (h *CardHandler) Withdraw(c echo.Context) error {
	return h.moveBalance(c, h.cardService.Withdraw)
}

type balanceOp func(ctx context.Context, caller model.Caller, id uuid.UUID, amount decimal.Decimal) (*model.CardView, error)

func (h *CardHandler) moveBalance(c echo.Context, op balanceOp) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req AmountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return badRequest("invalid amount", "INVALID_AMOUNT")
	}
	card, err := op(c.Request().Context(), caller, id, amount)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, card)
}
