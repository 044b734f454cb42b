package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/sekolahku/backend/pkg/errors"
	"github.com/sekolahku/backend/pkg/response"
	appValidator "github.com/sekolahku/backend/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and runs struct validation.
// On failure it writes the error response and returns false.
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
			if failure.Param != "" {
				messages = append(messages, failure.Field+" failed on "+failure.Tag+"="+failure.Param)
			} else {
				messages = append(messages, failure.Field+" failed on "+failure.Tag)
			}
		}
		return strings.Join(messages, "; ")
	}

	return err.Error()
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolQuery(c *gin.Context, key string) *bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &parsed
}
