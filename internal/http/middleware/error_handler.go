package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно. AppError превращается
// в свой HTTP статус и сообщение, известные ошибки репозиториев — в 404,
// всё остальное маскируется как внутренняя ошибка.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logRequestError(c, err)
			}
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message})
			return
		}

		if status, message, ok := repositoryError(err); ok {
			c.JSON(status, gin.H{"error": message})
			return
		}

		logRequestError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
	}
}

// repositoryError отображает сентинельные ошибки репозиториев, дошедшие
// до обработчика без обёртки AppError.
func repositoryError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "пользователь не найден", true
	case errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound, "заявка не найдена", true
	case errors.Is(err, repository.ErrQuoteNotFound):
		return http.StatusNotFound, "отклик не найден", true
	case errors.Is(err, repository.ErrPaymentNotFound):
		return http.StatusNotFound, "платёж не найден", true
	case errors.Is(err, repository.ErrPayoutNotFound):
		return http.StatusNotFound, "выплата не найдена", true
	case errors.Is(err, repository.ErrDisputeNotFound):
		return http.StatusNotFound, "спор не найден", true
	case errors.Is(err, repository.ErrReviewNotFound):
		return http.StatusNotFound, "отзыв не найден", true
	case errors.Is(err, repository.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "недостаточно средств для выплаты", true
	case errors.Is(err, repository.ErrUserAlreadyExists):
		return http.StatusConflict, "пользователь с таким email уже существует", true
	}
	return 0, "", false
}

func logRequestError(c *gin.Context, err error) {
	if logger.Log == nil {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).Error("Request error")
}
