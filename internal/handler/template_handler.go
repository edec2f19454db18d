package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coupon-backend/internal/dto/result"
	"coupon-backend/internal/model"
	"coupon-backend/internal/service"
)

type TemplateHandler struct {
	service *service.TemplateService
}

func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// AddTemplate 创建优惠券模板
func (h *TemplateHandler) AddTemplate(ctx *gin.Context) {
	var tpl model.CouponTemplate
	if err := ctx.ShouldBindJSON(&tpl); err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid payload"))
		return
	}
	if err := h.service.Create(ctx.Request.Context(), &tpl); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(tpl.ID))
}

// GetTemplate 查询模板详情
func (h *TemplateHandler) GetTemplate(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid template id"))
		return
	}
	tpl, err := h.service.GetByID(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(tpl))
}

// 获取指定店铺可用的优惠券模板列表
func (h *TemplateHandler) QueryTemplateOfShop(ctx *gin.Context) {
	shopID, err := strconv.ParseInt(ctx.Param("shopId"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid shop id"))
		return
	}
	tpls, err := h.service.QueryByShop(ctx.Request.Context(), shopID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(tpls))
}

type setStatusRequest struct {
	Status model.TemplateStatus `json:"status" binding:"required"`
}

// SetTemplateStatus 商户上下架模板
func (h *TemplateHandler) SetTemplateStatus(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid template id"))
		return
	}
	var req setStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid payload"))
		return
	}
	if err := h.service.SetStatus(ctx.Request.Context(), id, req.Status); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result.Ok())
}
