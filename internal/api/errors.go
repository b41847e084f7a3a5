package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"exchange-core/internal/exchange"
)

// respondError translates a typed exchange error into the stable
// {code,msg} envelope and an appropriate HTTP status.
func respondError(c *gin.Context, err error) {
	var (
		validation   *exchange.ValidationError
		insufficient *exchange.InsufficientFundsError
		rejected     *exchange.OrderRejectedError
		notFound     *exchange.OrderNotFoundError
		cancelRej    *exchange.CancelRejectedError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": err.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{"code": -2010, "msg": err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadRequest, gin.H{"code": -2010, "msg": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": -2013, "msg": err.Error()})
	case errors.As(err, &cancelRej):
		c.JSON(http.StatusBadRequest, gin.H{"code": -2011, "msg": err.Error()})
	case errors.Is(err, exchange.ErrUnknownSymbol):
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": err.Error()})
	case errors.Is(err, exchange.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"code": -2014, "msg": err.Error()})
	case errors.Is(err, exchange.ErrTimestampSkew):
		c.JSON(http.StatusBadRequest, gin.H{"code": -1021, "msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": -1000, "msg": "An unknown error occurred while processing the request."})
	}
}
