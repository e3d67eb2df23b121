package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	chelper "dice-server/common/helper"
	"dice-server/common/logger"
	"dice-server/internal/metrics"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CryptoPayClient 对接 Crypto Pay 风格的 HTTP API
// POST {base}/createInvoice  POST {base}/transfer  GET {base}/getInvoices?invoice_ids=...
// 认证通过 Crypto-Pay-API-Token 请求头
type CryptoPayClient struct {
	baseURL string
	token   string
	asset   string
	timeout time.Duration
}

// NewCryptoPayClient 构造网关客户端
func NewCryptoPayClient(baseURL, token, asset string, timeout time.Duration) *CryptoPayClient {
	if timeout <= 0 {
		timeout = chelper.GatewayTimeout
	}
	return &CryptoPayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		asset:   asset,
		timeout: timeout,
	}
}

func (c *CryptoPayClient) headers() map[string]string {
	return map[string]string{
		"Content-Type":         "application/json",
		"Crypto-Pay-API-Token": c.token,
	}
}

// CreateInvoice 生成账单
func (c *CryptoPayClient) CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*Invoice, error) {
	started := time.Now()
	result := "fail"
	defer func() { metrics.RecordGatewayCall("create_invoice", result, started) }()

	body, err := json.Marshal(map[string]any{
		"asset":       c.asset,
		"amount":      chelper.TrimDecimal(amount),
		"description": description,
	})
	if err != nil {
		return nil, pkgerrors.WithStack(err)
	}

	respBytes, status, err := chelper.HttpDoGateway(body, "POST", c.baseURL+"/createInvoice", c.headers(), c.timeout)
	if err != nil {
		logger.Error("gateway createInvoice request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if status != 200 {
		logger.Error("gateway createInvoice bad status", zap.Int("status", status))
		return nil, fmt.Errorf("%w: http status %d", ErrGateway, status)
	}

	inv, err := parseCreateInvoice(respBytes)
	if err != nil {
		return nil, err
	}
	result = "success"
	return inv, nil
}

// GetInvoiceStatus 查询账单状态
func (c *CryptoPayClient) GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	started := time.Now()
	result := "fail"
	defer func() { metrics.RecordGatewayCall("get_invoice_status", result, started) }()

	uri := c.baseURL + "/getInvoices?invoice_ids=" + url.QueryEscape(invoiceID)
	respBytes, status, err := chelper.HttpDoGateway(nil, "GET", uri, c.headers(), c.timeout)
	if err != nil {
		logger.Warn("gateway getInvoices request failed",
			zap.String("invoice_id", invoiceID),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if status != 200 {
		return "", fmt.Errorf("%w: http status %d", ErrGateway, status)
	}

	st, err := parseInvoiceStatus(respBytes, invoiceID)
	if err != nil {
		return "", err
	}
	result = "success"
	return st, nil
}

// Transfer 向用户转账（提现出金）
// spend_id 由调用方生成并且对同一笔业务重试保持一致，网关侧凭此幂等
func (c *CryptoPayClient) Transfer(ctx context.Context, userID int64, amount decimal.Decimal, spendID, comment string) error {
	started := time.Now()
	result := "fail"
	defer func() { metrics.RecordGatewayCall("transfer", result, started) }()

	body, err := json.Marshal(map[string]any{
		"user_id":  userID,
		"asset":    c.asset,
		"amount":   chelper.TrimDecimal(amount),
		"spend_id": spendID,
		"comment":  comment,
	})
	if err != nil {
		return pkgerrors.WithStack(err)
	}

	respBytes, status, err := chelper.HttpDoGateway(body, "POST", c.baseURL+"/transfer", c.headers(), c.timeout)
	if err != nil {
		logger.Error("gateway transfer request failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if status != 200 {
		return fmt.Errorf("%w: http status %d", ErrGateway, status)
	}

	var envelope struct {
		OK    bool `json:"ok"`
		Error *struct {
			Code int    `json:"code"`
			Name string `json:"name"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &envelope); err != nil {
		return fmt.Errorf("%w: invalid response body", ErrGateway)
	}
	if !envelope.OK {
		name := ""
		if envelope.Error != nil {
			name = envelope.Error.Name
		}
		return fmt.Errorf("%w: transfer rejected: %s", ErrGateway, name)
	}

	result = "success"
	return nil
}

// ---- 响应解析（与 HTTP 层解耦，便于单测） ----

type invoiceItem struct {
	InvoiceID json.Number `json:"invoice_id"`
	Status    string      `json:"status"`
	PayURL    string      `json:"pay_url"`
}

// parseCreateInvoice 解析 createInvoice 响应
func parseCreateInvoice(body []byte) (*Invoice, error) {
	var envelope struct {
		OK     bool        `json:"ok"`
		Result invoiceItem `json:"result"`
		Error  *struct {
			Code int    `json:"code"`
			Name string `json:"name"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid response body", ErrGateway)
	}
	if !envelope.OK {
		name := ""
		if envelope.Error != nil {
			name = envelope.Error.Name
		}
		return nil, fmt.Errorf("%w: createInvoice rejected: %s", ErrGateway, name)
	}
	if envelope.Result.InvoiceID.String() == "" || envelope.Result.PayURL == "" {
		return nil, fmt.Errorf("%w: createInvoice missing invoice_id/pay_url", ErrGateway)
	}
	return &Invoice{
		InvoiceID: envelope.Result.InvoiceID.String(),
		PayURL:    envelope.Result.PayURL,
		Status:    normalizeStatus(envelope.Result.Status),
	}, nil
}

// parseInvoiceStatus 解析 getInvoices 响应，取目标账单的状态
func parseInvoiceStatus(body []byte, invoiceID string) (string, error) {
	var envelope struct {
		OK     bool `json:"ok"`
		Result struct {
			Items []invoiceItem `json:"items"`
		} `json:"result"`
		Error *struct {
			Code int    `json:"code"`
			Name string `json:"name"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("%w: invalid response body", ErrGateway)
	}
	if !envelope.OK {
		name := ""
		if envelope.Error != nil {
			name = envelope.Error.Name
		}
		return "", fmt.Errorf("%w: getInvoices rejected: %s", ErrGateway, name)
	}
	for _, it := range envelope.Result.Items {
		if it.InvoiceID.String() == invoiceID {
			return normalizeStatus(it.Status), nil
		}
	}
	return "", ErrInvoiceNotFound
}

// normalizeStatus 收敛网关状态到 pending|paid|expired
func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid":
		return InvoiceStatusPaid
	case "expired":
		return InvoiceStatusExpired
	default:
		return InvoiceStatusPending
	}
}
