package helper

import (
	"github.com/shopspring/decimal"
)

// TrimDecimal 将金额四舍五入到两位小数后转为字符串，网关侧按字符串传输金额
func TrimDecimal(val decimal.Decimal) string {
	return val.StringFixed(2)
}
