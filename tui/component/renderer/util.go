package renderer

import (
	"fmt"
	"time"
)

// Truncate 截断字符串到指定长度，添加省略号
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}

// FormatCost 格式化美元金额，小额保留更多小数
func FormatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.5f", usd)
	}
	return fmt.Sprintf("$%.4f", usd)
}

// FormatDuration 格式化时间间隔
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
