package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cardledger/internal/model"
	"cardledger/internal/service"
)

// BlockRequestHandler handles the block-request workflow.
type BlockRequestHandler struct {
	blockRequests service.BlockRequestService
}

// NewBlockRequestHandler creates a new block request handler.
func NewBlockRequestHandler(blockRequests service.BlockRequestService) *BlockRequestHandler {
	return &BlockRequestHandler{blockRequests: blockRequests}
}

// BlockCardRequest carries the owner's optional comment.
type BlockCardRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

// RejectRequest carries the admin's reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// RequestBlock godoc
// @Summary Ask an admin to block one of the caller's cards
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body BlockCardRequest false "Comment"
// @Success 201 {object} model.BlockRequest
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /cards/{id}/block-requests [post]
func (h *BlockRequestHandler) RequestBlock(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	cardID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req BlockCardRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}
	request, err := h.blockRequests.RequestBlock(c.Request().Context(), caller, cardID, req.Comment)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, request)
}

// ListBlockRequests godoc
// @Summary List block requests
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} service.Page[model.BlockRequest]
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/block-requests [get]
func (h *BlockRequestHandler) ListBlockRequests(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	status := model.BlockRequestStatus(c.QueryParam("status"))
	requests, err := h.blockRequests.List(c.Request().Context(), caller, status, page)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, requests)
}

// Approve godoc
// @Summary Approve a pending block request and block the card
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Block request ID"
// @Success 200 {object} model.BlockRequest
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/block-requests/{id}/approve [post]
func (h *BlockRequestHandler) Approve(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	request, err := h.blockRequests.Approve(c.Request().Context(), caller, id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, request)
}

// Reject godoc
// @Summary Reject a pending block request
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Block request ID"
// @Param request body RejectRequest true "Reason"
// @Success 200 {object} model.BlockRequest
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/block-requests/{id}/reject [post]
func (h *BlockRequestHandler) Reject(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req RejectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	request, err := h.blockRequests.Reject(c.Request().Context(), caller, id, req.Reason)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, request)
}
