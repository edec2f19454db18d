package utils

const (
	CACHE_TEMPLATE_KEY = "cache:coupon:template:"
	CACHE_TEMPLATE_TTL = 30 // minutes
	LOCK_TEMPLATE_KEY  = "lock:coupon:template:"
	LOCK_TEMPLATE_TTL  = 10 // seconds
	LOCK_SWEEP_KEY     = "lock:coupon:sweep"
	LOCK_SWEEP_TTL     = 60 // seconds
)
