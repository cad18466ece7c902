package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servipay/internal/escrow"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// respondEngineError переводит виды ошибок движка в HTTP-коды.
// 4xx — вина вызывающего, повторять бессмысленно; 5xx — сбой
// инфраструктуры или провайдера, повтор уместен.
func respondEngineError(c *gin.Context, err error) {
	var gerr *escrow.GatewayError
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, escrow.ErrUnauthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, escrow.ErrInvalidState):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, escrow.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, escrow.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	case errors.As(err, &gerr):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: gerr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func parsePagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
