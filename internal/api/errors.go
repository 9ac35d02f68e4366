package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/services"
	"kitchenledger/server/internal/utils"
)

const userIDHeader = "X-User-ID"

// userID берет пользователя из заголовка, аутентификация выполняется снаружи
func userID(c *gin.Context) string {
	if id := c.GetHeader(userIDHeader); id != "" {
		return id
	}
	return "system"
}

// respondServiceError переводит ошибку сервиса в APIError
func respondServiceError(c *gin.Context, err error, message string) {
	apiErr := toAPIError(err, message)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	}
	utils.RespondWithError(c, apiErr)
}

func toAPIError(err error, message string) *utils.APIError {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, message, err.Error())
	case errors.Is(err, services.ErrValidation):
		apiErr := utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidation, message, err.Error())
		apiErr.Fields = utils.ProcessValidationErrors(err)
		return apiErr
	case errors.Is(err, services.ErrUnsupportedConversion),
		errors.Is(err, services.ErrInvalidYield),
		errors.Is(err, services.ErrInvalidMargin):
		return utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, message, err.Error())
	case errors.Is(err, repositories.ErrConflict),
		errors.Is(err, repositories.ErrDuplicateKey),
		errors.Is(err, utils.ErrLockNotObtained):
		return utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, message, err.Error())
	}
	return utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, message, err.Error())
}

func badRequest(c *gin.Context, message string, err error) {
	apiErr := utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, message, err.Error())
	apiErr.Fields = utils.ProcessValidationErrors(err)
	utils.RespondWithError(c, apiErr)
}

// intQuery читает положительное целое из query, пустое значение = def
func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(key + " должен быть неотрицательным целым")
	}
	return v, nil
}
