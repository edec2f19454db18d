package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coupon-backend/internal/dto/result"
	"coupon-backend/internal/middleware"
	"coupon-backend/internal/service"
)

type ClaimHandler struct {
	claimSvc  *service.ClaimService
	redeemSvc *service.RedeemService
}

func NewClaimHandler(claimSvc *service.ClaimService, redeemSvc *service.RedeemService) *ClaimHandler {
	return &ClaimHandler{claimSvc: claimSvc, redeemSvc: redeemSvc}
}

// claimResponse 领取成功的返回体
type claimResponse struct {
	Code      string    `json:"code"`
	ClaimTime time.Time `json:"claimTime"`
}

// Claim 领取优惠券
func (h *ClaimHandler) Claim(ctx *gin.Context) {
	templateID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid template id"))
		return
	}

	// 从上下文获取登录用户（上游网关写入的 X-User-Id）
	userID, ok := middleware.GetCurrentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, result.Fail("未登录"))
		return
	}

	record, svcErr := h.claimSvc.Claim(ctx.Request.Context(), userID, templateID, time.Now())
	if svcErr != nil {
		writeError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(claimResponse{
		Code:      record.Code,
		ClaimTime: record.ClaimTime,
	}))
}

type redeemRequest struct {
	Code       string `json:"code" binding:"required"`
	ShopID     int64  `json:"shopId" binding:"required"`
	OperatorID int64  `json:"operatorId" binding:"required"`
}

// redeemResponse 核销成功的返回体
type redeemResponse struct {
	ClaimID int64     `json:"claimId"`
	UseTime time.Time `json:"useTime"`
}

// Redeem 核销券码
func (h *ClaimHandler) Redeem(ctx *gin.Context) {
	var req redeemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid payload"))
		return
	}
	record, svcErr := h.redeemSvc.Redeem(ctx.Request.Context(), req.Code, req.ShopID, req.OperatorID, time.Now())
	if svcErr != nil {
		writeError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(redeemResponse{
		ClaimID: record.ID,
		UseTime: *record.UseTime,
	}))
}

// Verify 核销前查验券码，只读
func (h *ClaimHandler) Verify(ctx *gin.Context) {
	code := ctx.Param("code")
	if code == "" {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid code"))
		return
	}
	res, svcErr := h.redeemSvc.Verify(ctx.Request.Context(), code)
	if svcErr != nil {
		writeError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(res))
}
