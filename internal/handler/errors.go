package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coupon-backend/internal/dto/result"
	"coupon-backend/internal/service"
)

// writeError 按业务错误分类映射 HTTP 状态码
func writeError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindPreconditionFailed:
		status = http.StatusBadRequest
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindTransient:
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, result.Fail(err.Error()))
}
