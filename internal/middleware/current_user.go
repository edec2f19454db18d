package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const currentUserKey = "currentUserId"

// CurrentUserMiddleware 从 X-User-Id 头解析当前登录用户
// 鉴权由上游网关完成，这里只消费它传下来的用户标识
func CurrentUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-Id")
		if raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				c.Set(currentUserKey, id)
			}
		}
		c.Next()
	}
}

// GetCurrentUserID 获取当前用户ID，未登录返回 false
func GetCurrentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
