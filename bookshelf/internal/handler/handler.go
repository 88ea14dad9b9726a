package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/errs"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/model"
	md "github.com/Astemirdum/bookshelf-service/pkg/middleware"
	"github.com/Astemirdum/bookshelf-service/pkg/validate"
	_ "github.com/Astemirdum/bookshelf-service/swagger"
)

const (
	serviceName     = "bookshelf"
	statusMessage   = "Backend running successfully"
	notFoundMessage = "Book not found"
)

type Handler struct {
	bookSvc      BookService
	log          *zap.Logger
	strictStatus bool
	rps          float64
	swagger      bool
}

type Option func(h *Handler)

// WithStrictStatus rejects statuses outside tbr, in-progress and finished.
func WithStrictStatus(strict bool) Option {
	return func(h *Handler) {
		h.strictStatus = strict
	}
}

// WithRateLimit caps requests per second per client IP. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(h *Handler) {
		h.rps = rps
	}
}

func WithSwagger(enable bool) Option {
	return func(h *Handler) {
		h.swagger = enable
	}
}

func New(bookSvc BookService, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		bookSvc: bookSvc,
		log:     log.Named("handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = h.errorHandler
	e.Validator = validate.NewCustomValidator()

	e.Pre(md.LogRequest(h.log.Named("access")))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			h.log.Error("panic recovered",
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(
		otelecho.Middleware(serviceName),
		middleware.RequestID(),
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log.Named("echo"))),
	)
	if h.rps > 0 {
		e.Use(md.NewRateLimiter(rate.Limit(h.rps)))
	}

	e.GET("/", h.Status)
	if h.swagger {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := e.Group("/api/books")
	api.GET("", h.ListBooks)
	api.POST("", h.CreateBook)
	api.PATCH("/:id", h.UpdateBook)
	api.DELETE("/:id", h.DeleteBook)

	return e
}

// Status godoc
// @Summary  Liveness message
// @Produce  json
// @Success  200 {object} model.StatusResponse
// @Router   / [get]
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, model.StatusResponse{Status: statusMessage})
}

// ListBooks godoc
// @Summary  List all books
// @Tags     books
// @Produce  json
// @Success  200 {array}  model.Book
// @Failure  500 {object} model.ErrorResponse
// @Router   /api/books [get]
func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.bookSvc.ListBooks(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, books)
}

// CreateBook godoc
// @Summary  Create a book
// @Tags     books
// @Accept   json
// @Produce  json
// @Param    book body     model.Book true "any subset of book fields"
// @Success  201  {object} model.CreateBookResponse
// @Failure  400  {object} model.ErrorResponse
// @Failure  500  {object} model.ErrorResponse
// @Router   /api/books [post]
func (h *Handler) CreateBook(c echo.Context) error {
	var in model.BookInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := h.checkStatus(c, in.Status); err != nil {
		return err
	}

	book, err := h.bookSvc.CreateBook(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, model.CreateBookResponse{
		Message: fmt.Sprintf("Book '%s' added successfully", book.Title),
		ID:      book.ID,
	})
}

// UpdateBook godoc
// @Summary  Partially update a book
// @Tags     books
// @Accept   json
// @Produce  json
// @Param    id   path     string     true "book id"
// @Param    book body     model.Book true "fields to change"
// @Success  200  {object} model.MessageResponse
// @Failure  404  {object} model.ErrorResponse
// @Failure  500  {object} model.ErrorResponse
// @Router   /api/books/{id} [patch]
func (h *Handler) UpdateBook(c echo.Context) error {
	id := c.Param("id")
	var in model.BookInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := h.checkStatus(c, in.Status); err != nil {
		return err
	}

	book, err := h.bookSvc.UpdateBook(c.Request().Context(), id, in)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, notFoundMessage)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, model.MessageResponse{
		Message: fmt.Sprintf("Book '%s' updated successfully", book.Title),
	})
}

// DeleteBook godoc
// @Summary  Delete a book
// @Tags     books
// @Produce  json
// @Param    id  path     string true "book id"
// @Success  200 {object} model.MessageResponse
// @Failure  404 {object} model.ErrorResponse
// @Failure  500 {object} model.ErrorResponse
// @Router   /api/books/{id} [delete]
func (h *Handler) DeleteBook(c echo.Context) error {
	book, err := h.bookSvc.DeleteBook(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, notFoundMessage)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, model.MessageResponse{
		Message: fmt.Sprintf("Book '%s' deleted successfully", book.Title),
	})
}

type statusRule struct {
	Status string `validate:"oneof=tbr in-progress finished"`
}

func (h *Handler) checkStatus(c echo.Context, status model.Field[model.Status]) error {
	v, ok := status.Get()
	if !h.strictStatus || !ok {
		return nil
	}
	if err := c.Validate(statusRule{Status: string(v)}); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// errorHandler renders every error as {"error": "..."}.
func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := http.StatusInternalServerError, err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, model.ErrorResponse{Error: msg})
	}
	if err != nil {
		h.log.Error("errorHandler", zap.Error(err))
	}
}
