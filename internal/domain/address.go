package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedAddress 表示地址不是合法的 local@domain 形式。
	ErrMalformedAddress = errors.New("malformed address")
)

// SplitAddress 将 local@domain 形式的地址拆分为本地部分与域名。
//
// 要求：纯 ASCII、恰好一个 @ 分隔符、两侧均非空。
func SplitAddress(addr string) (local, domain string, err error) {
	for i := 0; i < len(addr); i++ {
		if addr[i] > 127 {
			return "", "", ErrMalformedAddress
		}
	}

	if strings.Count(addr, "@") != 1 {
		return "", "", ErrMalformedAddress
	}

	parts := strings.SplitN(addr, "@", 2)
	local, domain = parts[0], parts[1]
	if local == "" || domain == "" {
		return "", "", ErrMalformedAddress
	}
	return local, domain, nil
}

// FormatSender 生成规范发件人字符串。
func FormatSender(displayName, name, domain string) string {
	return fmt.Sprintf("%s <%s@%s>", displayName, name, domain)
}

// CanonicalName 从发件人字符串中提取本地用户名。
//
// 兼容三种输入：裸用户名 "alice"、地址 "alice@x.org"、
// 规范形式 "Alice Example <alice@x.org>"。
func CanonicalName(sender string) string {
	s := strings.TrimSpace(sender)

	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.Index(s[open:], ">"); end > 0 {
			s = s[open+1 : open+end]
		} else {
			s = s[open+1:]
		}
	}

	if at := strings.Index(s, "@"); at >= 0 {
		s = s[:at]
	}
	return strings.TrimSpace(s)
}
