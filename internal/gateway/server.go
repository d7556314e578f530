package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jye-lim/wav2vec2-asr/internal/logging"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

const (
	// RequestIDHeader carries the correlation identifier in both directions.
	RequestIDHeader = "X-Request-ID"
	// UploadField is the multipart field holding the audio file.
	UploadField = "file"

	localsRequestID = "request_id"
)

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Message string `json:"message"`
}

// TranscriptionResponse is the body of a successful POST /asr.
type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
	Duration      string `json:"duration"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ServerOptions configures the HTTP layer.
type ServerOptions struct {
	Bind        string
	MaxBodySize int
	Logger      *slog.Logger
}

// Server is the fiber application serving a Service.
type Server struct {
	app    *fiber.App
	svc    *Service
	bind   string
	logger *slog.Logger

	listener net.Listener
}

// NewServer wires routes for svc.
func NewServer(svc *Service, opts ServerOptions) *Server {
	s := &Server{
		svc:    svc,
		bind:   opts.Bind,
		logger: logging.NewComponentLogger(opts.Logger, "gateway-http"),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "cvasr-gateway",
		BodyLimit:             opts.MaxBodySize,
		DisableStartupMessage: true,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          5 * time.Minute,
		IdleTimeout:           2 * time.Minute,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestID)
	s.app.Get("/ping", s.handlePing)
	s.app.Post("/asr", s.handleASR)
	return s
}

// App exposes the fiber application, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.app.Listener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("gateway server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("gateway listening",
		logging.String("address", listener.Addr().String()),
		logging.Int("target_sample_rate", s.svc.TargetRate()),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests for up to five seconds.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.app.ShutdownWithContext(shutdownCtx)
}

func (s *Server) requestID(c *fiber.Ctx) error {
	rid := c.Get(RequestIDHeader)
	if rid == "" {
		rid = uuid.NewString()
	}
	c.Set(RequestIDHeader, rid)
	c.Locals(localsRequestID, rid)
	c.SetUserContext(services.WithRequestID(c.UserContext(), rid))
	return c.Next()
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(PingResponse{Message: s.svc.Ping()})
}

func (s *Server) handleASR(c *fiber.Ctx) error {
	ctx := c.UserContext()
	logger := logging.WithContext(ctx, s.logger)

	header, err := c.FormFile(UploadField)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: fmt.Sprintf("multipart field %q is required", UploadField),
			Kind:  services.KindValidation,
		})
	}
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	result, err := s.svc.Transcribe(ctx, raw)
	if err != nil {
		status := StatusFor(err)
		kind := services.KindOf(err)
		if status >= http.StatusInternalServerError {
			logging.ErrorWithContext(logger, "transcription failed", "asr_failed",
				logging.String("filename", header.Filename),
				logging.String(logging.FieldErrorKind, kind),
				logging.Error(err),
			)
		} else {
			logging.WarnWithContext(logger, "transcription rejected", "asr_rejected",
				logging.String("filename", header.Filename),
				logging.String(logging.FieldErrorKind, kind),
				logging.String(logging.FieldImpact, "client receives an error response"),
				logging.Error(err),
			)
		}
		return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Kind: kind})
	}

	logger.Info("transcribed upload",
		logging.String("filename", header.Filename),
		logging.Int64("bytes", header.Size),
		logging.Float64("duration_seconds", result.Duration),
		logging.Int("characters", len(result.Text)),
	)
	return c.JSON(TranscriptionResponse{
		Transcription: result.Text,
		Duration:      FormatDuration(result.Duration),
	})
}

// handleError renders fiber and handler errors in the ErrorResponse shape.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	if status >= fiber.StatusInternalServerError {
		logging.WithContext(c.UserContext(), s.logger).Error("request failed", logging.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

// StatusFor maps an error kind onto the HTTP status returned by /asr.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrDecode):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrResample):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
