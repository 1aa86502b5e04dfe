package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/ingest"
	"github.com/KaramelBytes/stagewise/internal/results"
	"github.com/KaramelBytes/stagewise/internal/wizard"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found or expired")

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errorHandler maps domain errors to status codes. Anything unrecognised is
// logged and reported as a generic failure.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		resp := classify(err)
		if resp.Code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		return c.Status(resp.Code).JSON(resp)
	}
}

func classify(err error) ErrorResponse {
	var (
		fe *fiber.Error
		ie *ingest.IngestError
		ve *wizard.ValidationError
	)
	switch {
	case errors.As(err, &ie):
		return ErrorResponse{Code: fiber.StatusUnprocessableEntity, Error: string(ie.Kind), Message: ie.Message()}
	case errors.As(err, &ve):
		return ErrorResponse{Code: fiber.StatusConflict, Error: "validation", Message: ve.Reason, Field: ve.Field}
	case errors.Is(err, ErrSessionNotFound):
		return ErrorResponse{Code: fiber.StatusNotFound, Error: "session_not_found", Message: err.Error()}
	case errors.Is(err, wizard.ErrSubmissionPending):
		return ErrorResponse{Code: fiber.StatusConflict, Error: "submission_pending", Message: err.Error()}
	case errors.Is(err, wizard.ErrNoSubmission):
		return ErrorResponse{Code: fiber.StatusConflict, Error: "no_submission", Message: err.Error()}
	case errors.Is(err, wizard.ErrWrongStage):
		return ErrorResponse{Code: fiber.StatusConflict, Error: "wrong_stage", Message: err.Error()}
	case errors.Is(err, results.ErrDownloadUnsupported):
		return ErrorResponse{Code: fiber.StatusNotImplemented, Error: "download_unsupported", Message: "Download is not available for this analysis type yet."}
	case errors.Is(err, results.ErrNoArtifact):
		return ErrorResponse{Code: fiber.StatusNotFound, Error: "not_found", Message: err.Error()}
	case errors.As(err, &fe):
		return ErrorResponse{Code: fe.Code, Error: "request", Message: fe.Message}
	}
	return ErrorResponse{Code: fiber.StatusInternalServerError, Error: "internal", Message: "The operation failed. Please try again."}
}
