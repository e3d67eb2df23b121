package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// 托管支付网关的账单状态
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusExpired = "expired"
)

// Invoice 网关返回的账单
type Invoice struct {
	InvoiceID string // 网关侧账单ID
	PayURL    string // 付款链接
	Status    string // pending|paid|expired
}

// Client 托管支付网关客户端
// CreateInvoice 生成付款账单；GetInvoiceStatus 查询账单状态；Transfer 向用户转账（提现）
type Client interface {
	CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*Invoice, error)
	GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error)
	Transfer(ctx context.Context, userID int64, amount decimal.Decimal, spendID, comment string) error
}

var (
	// ErrGateway 网关通讯失败或网关返回业务错误
	ErrGateway = errors.New("payment gateway error")
	// ErrInvoiceNotFound 查询的账单在网关侧不存在
	ErrInvoiceNotFound = errors.New("invoice not found")
)
