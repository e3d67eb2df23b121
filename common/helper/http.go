package helper

import (
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// GatewayTimeout 支付网关统一超时时间
const GatewayTimeout = 8 * time.Second

// 支付网关专用客户端，连接复用
var gatewayClient = &fasthttp.Client{
	ReadTimeout:                   GatewayTimeout,
	WriteTimeout:                  GatewayTimeout,
	MaxIdleConnDuration:           60 * time.Second,
	MaxConnsPerHost:               100,
	MaxConnWaitTimeout:            1 * time.Second,
	DisableHeaderNamesNormalizing: true,
}

// HttpDoGateway 向支付网关发起请求，返回响应体与状态码
func HttpDoGateway(requestBody []byte, method string, requestURI string, headers map[string]string, timeout time.Duration) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(requestURI)
	req.Header.SetMethod(method)

	if method == "POST" {
		req.SetBody(requestBody)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	err := gatewayClient.DoTimeout(req, resp, timeout)

	var respBytes []byte
	statusCode := 0
	if err == nil {
		respBytes = append(respBytes, resp.Body()...)
		statusCode = resp.StatusCode()
	}

	return respBytes, statusCode, errors.WithStack(err)
}
