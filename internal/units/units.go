// Package units provides shared byte-size constants and formatting helpers
// for memory and resource reporting.
package units

import "fmt"

// Byte size constants.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
)

// HumanBytes renders a byte count with a binary unit suffix, e.g. "3.2 MB".
// Values below 1 KiB are rendered as plain bytes.
func HumanBytes(n int64) string {
	switch {
	case n >= GiB:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(GiB))
	case n >= MiB:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(MiB))
	case n >= KiB:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(KiB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := false
	if len(str) > 0 && str[0] == '-' {
		neg = true
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	if neg {
		return "-" + result
	}
	return result
}

// Percent renders a ratio in [0,1] as a percentage string with one decimal.
func Percent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}
