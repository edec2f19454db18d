package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coupon-backend/internal/dto/result"
)

// ErrorHandler 兜底异常处理：记录 panic 与未消费的错误，返回统一响应
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.Error("panic recovered",
						zap.Any("panic", r),
						zap.String("path", c.Request.URL.Path))
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, result.Fail("internal error"))
			}
		}()
		c.Next()
		if len(c.Errors) > 0 && log != nil {
			for _, ginErr := range c.Errors {
				log.Error("request error",
					zap.String("path", c.Request.URL.Path),
					zap.Error(ginErr.Err))
			}
		}
	}
}
