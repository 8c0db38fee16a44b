package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"cardledger/internal/auth"
	"cardledger/internal/config"
	"cardledger/internal/handler"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	User         *handler.UserHandler
	Card         *handler.CardHandler
	Transfer     *handler.TransferHandler
	BlockRequest *handler.BlockRequestHandler
}

// Register wires routes and middleware.
func Register(e *echo.Echo, cfg *config.Config, gatherer prometheus.Gatherer, h Handlers) {
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Everything under /api requires a bearer token.
	api := e.Group("/api", auth.Middleware(cfg.JWTSecret), auth.RequireCaller)

	api.GET("/me", h.User.Me)

	api.GET("/cards", h.Card.ListMyCards)
	api.GET("/cards/:id", h.Card.GetCard)
	api.POST("/cards/:id/deposit", h.Card.Deposit)
	api.POST("/cards/:id/withdraw", h.Card.Withdraw)
	api.POST("/cards/:id/block-requests", h.BlockRequest.RequestBlock)

	api.POST("/transfers", h.Transfer.CreateTransfer)
	api.GET("/transfers", h.Transfer.ListTransfers)
	api.GET("/transfers/:id", h.Transfer.GetTransfer)

	admin := api.Group("/admin", auth.RequireAdmin)

	admin.POST("/users", h.User.CreateUser)
	admin.GET("/users", h.User.ListUsers)

	admin.POST("/cards", h.Card.IssueCard)
	admin.GET("/cards", h.Card.ListAllCards)
	admin.PATCH("/cards/:id/status", h.Card.ChangeStatus)
	admin.DELETE("/cards/:id", h.Card.DeleteCard)

	admin.GET("/block-requests", h.BlockRequest.ListBlockRequests)
	admin.POST("/block-requests/:id/approve", h.BlockRequest.Approve)
	admin.POST("/block-requests/:id/reject", h.BlockRequest.Reject)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
