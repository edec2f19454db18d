package utils

import (
	"crypto/rand"
	"fmt"
)

// 券码字符集：去掉 0/O/1/I 等易混淆字符，方便线下人工录入
const codeCharset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the length of generated redemption codes.
const CodeLength = 12

// NewClaimCode 生成一个随机券码
// 唯一性由数据库唯一索引兜底，调用方在冲突时重新生成
func NewClaimCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}
