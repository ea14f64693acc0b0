package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound       = echo.NewHTTPError(http.StatusNotFound, "not found")
	errMissingFile        = core.NewFieldError("file", "a file is required")
)

type (
	// ConflictResponse is the body of a 409: the client should refresh the record.
	ConflictResponse struct {
		Error       string          `json:"error"`
		RecordID    string          `json:"record_id,omitempty"`
		Status      document.Status `json:"status"`
		Action      document.Action `json:"action,omitempty"`
		OrphanedURL string          `json:"orphaned_url,omitempty"`
	}

	// UploadErrorResponse is the body of a 502: the same file can be submitted again.
	UploadErrorResponse struct {
		Error string `json:"error"`
		File  string `json:"file"`
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *document.ConflictError:
			code = http.StatusConflict
			message = ConflictResponse{
				Error:       origErr.Message,
				RecordID:    origErr.RecordID,
				Status:      origErr.Status,
				OrphanedURL: origErr.OrphanedURL,
			}
		case *document.InvalidStateError:
			code = http.StatusConflict
			message = ConflictResponse{Error: origErr.Error(), Status: origErr.Status, Action: origErr.Action}
		case *document.UploadError:
			code = http.StatusBadGateway
			message = UploadErrorResponse{Error: "upload failed; please try again", File: origErr.File.Name}
			logger.Warn(origErr.Error(), err)
		default:
			switch origErr {
			case document.ErrNotFound, document.ErrSlotNotFound, user.ErrNotFound:
				code = http.StatusNotFound
				message = origErr.Error()
			case document.ErrPermissionDenied:
				code = http.StatusForbidden
				message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
