package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	RespondErrorMessage(c, code, err.Error())
}

func RespondErrorMessage(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    code,
		Error:     http.StatusText(code),
		Message:   message,
	})
}
