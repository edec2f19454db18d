package utils

import (
	"strings"
	"testing"
)

func TestNewClaimCodeFormat(t *testing.T) {
	code, err := NewClaimCode()
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if len(code) != CodeLength {
		t.Fatalf("expected length %d, got %d (%s)", CodeLength, len(code), code)
	}
	for _, ch := range code {
		if !strings.ContainsRune(codeCharset, ch) {
			t.Fatalf("code %s contains invalid character %q", code, ch)
		}
	}
}

// 随机券码在小样本内撞码的概率可以忽略，撞了说明生成器坏了
func TestNewClaimCodeUniqueness(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		code, err := NewClaimCode()
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code generated: %s", code)
		}
		seen[code] = struct{}{}
	}
}
