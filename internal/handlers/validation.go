package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/internal/services"
	appErrors "github.com/proserveapp/proserve/pkg/errors"
	"github.com/proserveapp/proserve/pkg/response"
	appValidator "github.com/proserveapp/proserve/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	if ve, ok := err.(appValidator.ValidationErrors); ok {
		if len(ve) == 0 {
			return "invalid request payload"
		}

		messages := make([]string, 0, len(ve))
		for _, failure := range ve {
			field := prettifyFieldName(failure.Field)
			switch failure.Tag {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", field))
			case "email":
				messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s characters", field, failure.Param))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
			default:
				if failure.Param != "" {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
				} else {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
				}
			}
		}
		return strings.Join(messages, "; ")
	}

	return "invalid request payload"
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}

// serviceError maps service sentinels onto the API error taxonomy.
func serviceError(err error) *appErrors.AppError {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrCompanyNotFound):
		return appErrors.ErrNotFound.WithInternal(err)
	case errors.Is(err, services.ErrPlanNotFound):
		return appErrors.ErrInvalidPlan.WithInternal(err)
	case errors.Is(err, services.ErrEmailTaken):
		return appErrors.NewConflict("An account with this email already exists")
	case errors.Is(err, services.ErrTokenInvalid),
		errors.Is(err, services.ErrTokenExpired):
		return appErrors.ErrInvalidOrExpiredToken.WithInternal(err)
	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials.WithInternal(err)
	case errors.Is(err, services.ErrAccountNotActive):
		return appErrors.New("ACCOUNT_NOT_ACTIVE", "Account is not active", http.StatusForbidden).WithInternal(err)
	case errors.Is(err, payments.ErrInvalidSignature):
		return appErrors.ErrAuthenticationFailed.WithInternal(err)
	case errors.Is(err, payments.ErrUnavailable):
		return appErrors.ErrGatewayUnavailable.WithInternal(err)
	case errors.Is(err, payments.ErrSessionNotFound):
		return appErrors.ErrNotFound.WithInternal(err)
	default:
		return appErrors.FromError(err)
	}
}
