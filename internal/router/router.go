package router

import (
	"github.com/gin-gonic/gin"

	"coupon-backend/internal/handler"
	"coupon-backend/internal/middleware"
	"coupon-backend/internal/service"
)

// RegisterRoutes 统一注册所有模块的路由
func RegisterRoutes(engine *gin.Engine, services *service.Registry) {
	engine.Use(middleware.CORSMiddleware())
	engine.Use(middleware.CurrentUserMiddleware())

	templateHandler := handler.NewTemplateHandler(services.Template)
	claimHandler := handler.NewClaimHandler(services.Claim, services.Redeem)

	couponGroup := engine.Group("/coupon")
	couponGroup.POST("", templateHandler.AddTemplate)
	couponGroup.GET("/detail/:id", templateHandler.GetTemplate)
	couponGroup.PUT("/status/:id", templateHandler.SetTemplateStatus)
	couponGroup.GET("/list/:shopId", templateHandler.QueryTemplateOfShop)

	claimGroup := engine.Group("/coupon-claim")
	claimGroup.POST("/claim/:id", claimHandler.Claim)
	claimGroup.POST("/redeem", claimHandler.Redeem)
	claimGroup.GET("/verify/:code", claimHandler.Verify)
}
