package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/jobrelay/internal/action"
	"github.com/memohai/jobrelay/internal/auth"
	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/route"
)

// Handler registers its routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// TriggerFirer runs user hooks for an authenticated request.
type TriggerFirer interface {
	Fire(ctx context.Context, req action.Request)
}

type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer builds the echo instance. Middleware order matters: paths are
// normalized before routing, the auth gate runs before triggers, and
// triggers run before any handler.
func NewServer(log *slog.Logger, cfg config.ServerConfig, keys auth.KeySource, triggers TriggerFirer, handlers ...Handler) *Server {
	if log == nil {
		log = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	bodyLimit := cfg.MaxBodyBytes
	if bodyLimit <= 0 {
		bodyLimit = config.DefaultMaxBodyBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Validator = NewValidator()
	e.Pre(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			r.URL.Path = route.Normalize(r.URL.Path)
			r.URL.RawPath = ""
			return next(c)
		}
	})
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			}
			if caller := auth.Caller(c); caller != "" {
				attrs = append(attrs, slog.String("caller", caller))
			}
			log.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodyLimit, 10) + "B"))
	e.Use(auth.Middleware(keys))
	if triggers != nil {
		e.Use(fireTriggers(log, triggers))
	}

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}
	return &Server{echo: e, addr: addr}
}

func (s *Server) Start() error {
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type structValidator struct {
	validate *validator.Validate
}

// NewValidator checks request structs against their `validate` tags.
func NewValidator() echo.Validator {
	return structValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v structValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// fireTriggers hands a copy of the request to the trigger table and restores
// the body for the route handler. Only requests that passed auth get here.
func fireTriggers(log *slog.Logger, triggers TriggerFirer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			var body []byte
			if r.Body != nil {
				raw, err := io.ReadAll(r.Body)
				if err != nil {
					log.Warn("read body for triggers failed", slog.Any("error", err))
					return echo.NewHTTPError(http.StatusBadRequest, "Invalid body")
				}
				body = raw
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}
			triggers.Fire(r.Context(), action.Request{
				Path:    r.URL.Path,
				Body:    body,
				Query:   r.URL.Query(),
				Headers: r.Header.Clone(),
			})
			return next(c)
		}
	}
}

func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if he.Message != nil {
				message = fmt.Sprint(he.Message)
			}
		}
		switch status {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			status, message = http.StatusNotFound, "Not found"
		case http.StatusUnauthorized:
			message = "Unauthorized"
		case http.StatusInternalServerError:
			log.Error("request failed", slog.String("path", c.Request().URL.Path), slog.Any("error", err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, map[string]string{"error": message})
		}
		if err != nil {
			log.Warn("write error response failed", slog.Any("error", err))
		}
	}
}
