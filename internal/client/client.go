// Package client 上游行情 API 客户端
//
// 每个请求在 apikey 头中携带配置的 API key, 返回 {errno, errmsg, result} 信封中的 result.
// 客户端本身不限速, 同步任务用 Pacer 控制请求间隔.
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/pkg/circuitbreaker"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

const (
	// DefaultProxyURL 排行榜数据地址
	DefaultProxyURL = "https://proxy.opinion.trade:8443/api/bsc/api/v2"
	// ChainID 成交和排行榜接口要求的 BNB 链ID
	ChainID = 56

	maxBodyBytes = 8 << 20
)

// 端点名, 用作熔断器名称和指标标签
const (
	EndpointMarkets     = "markets"
	EndpointTrades      = "trades"
	EndpointTokenPrice  = "token_price"
	EndpointLeaderboard = "leaderboard"
)

// subjectEndpoints 按单个主体 (一个钱包) 查询的端点
//
// 这类端点的错误响应和超时只反映该主体, 只有连接失败计入熔断.
var subjectEndpoints = map[string]bool{
	EndpointTrades: true,
}

// Config 上游客户端配置
type Config struct {
	BaseURL  string                `yaml:"base_url" json:"base_url"`
	ProxyURL string                `yaml:"proxy_url" json:"proxy_url"`
	APIKey   string                `yaml:"api_key" json:"-"`
	Timeout  time.Duration         `yaml:"timeout" json:"timeout"`
	Breaker  circuitbreaker.Config `yaml:"breaker" json:"breaker"`
}

// Client 上游 API 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	proxyURL   string
	apiKey     string
	breakers   *circuitbreaker.Registry
	log        *zap.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New 创建客户端
//
// 缺少 API key 或 base URL 时, 每次调用都在发出请求前返回配置错误.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	proxy := cfg.ProxyURL
	if proxy == "" {
		proxy = DefaultProxyURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		proxyURL:   strings.TrimRight(proxy, "/"),
		apiKey:     cfg.APIKey,
		log:        logger.Named("upstream"),
	}
	c.breakers = circuitbreaker.NewRegistry(cfg.Breaker, func(name string, from, to circuitbreaker.State) {
		metrics.UpstreamBreakerState.WithLabelValues(name).Set(float64(to))
		c.log.Warn("circuit breaker state changed",
			zap.String("endpoint", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckConfig 缺少 key 或 base URL 时返回配置错误
func (c *Client) CheckConfig() error {
	if c.apiKey == "" {
		return errors.Wrapf(errors.ErrConfiguration, "upstream api key is not set")
	}
	if c.baseURL == "" {
		return errors.Wrapf(errors.ErrConfiguration, "upstream base url is not set")
	}
	return nil
}

type envelope struct {
	Errno  *int            `json:"errno"`
	Errmsg string          `json:"errmsg"`
	Result json.RawMessage `json:"result"`
}

// getJSON 对 base+path 发起一次 GET, 将信封中的 result 解码到 out
func (c *Client) getJSON(ctx context.Context, endpoint, base, path string, query url.Values, out interface{}) error {
	if err := c.CheckConfig(); err != nil {
		return err
	}

	breaker := c.breakers.Get(endpoint)
	if !breaker.Allow() {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
		return errors.Wrapf(errors.ErrCircuitOpen, "endpoint %s", endpoint)
	}

	start := time.Now()
	responded, err := c.do(ctx, base, path, query, out)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		breaker.Success()
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	case errors.Is(err, errors.ErrCanceled):
		breaker.Release()
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "canceled").Inc()
	case errors.Is(err, errors.ErrTimeout):
		if subjectEndpoints[endpoint] {
			breaker.Release()
		} else {
			breaker.Failure()
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "timeout").Inc()
	default:
		if responded && subjectEndpoints[endpoint] {
			breaker.Release()
		} else {
			breaker.Failure()
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "upstream_error").Inc()
	}
	return err
}

// do 发送请求; responded 表示服务端是否有响应 (不论状态码和内容)
func (c *Client) do(ctx context.Context, base, path string, query url.Values, out interface{}) (responded bool, err error) {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, errors.WrapWithCause(errors.ErrUpstream, err, "build request %s", path)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return false, errors.WrapWithCause(errors.ErrTimeout, err, "GET %s", path)
		}
		if stderrors.Is(err, context.Canceled) {
			return false, errors.WrapWithCause(errors.ErrCanceled, err, "GET %s", path)
		}
		return false, errors.WrapWithCause(errors.ErrUpstream, err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return true, errors.WrapWithCause(errors.ErrTimeout, err, "read %s", path)
		}
		return true, errors.WrapWithCause(errors.ErrUpstream, err, "read %s", path)
	}

	return true, decodeEnvelope(path, resp.StatusCode, body, out)
}

func decodeEnvelope(path string, status int, body []byte, out interface{}) error {
	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if status < 200 || status > 299 {
		msg := env.Errmsg
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(status)
		}
		return errors.Wrapf(errors.ErrUpstream, "GET %s: status %d: %s", path, status, msg).
			WithDetail("status", strconv.Itoa(status))
	}
	if decodeErr != nil {
		return errors.WrapWithCause(errors.ErrUpstream, decodeErr, "GET %s: malformed json", path)
	}
	if env.Errno == nil {
		return errors.Wrapf(errors.ErrUpstream, "GET %s: missing errno", path)
	}
	if *env.Errno != 0 {
		return errors.Wrapf(errors.ErrUpstream, "GET %s: errno %d: %s", path, *env.Errno, env.Errmsg).
			WithDetail("errno", strconv.Itoa(*env.Errno))
	}
	if out == nil {
		return nil
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return errors.Wrapf(errors.ErrUpstream, "GET %s: empty result", path)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return errors.WrapWithCause(errors.ErrUpstream, err, "GET %s: unexpected result shape", path)
	}
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return stderrors.As(err, &te) && te.Timeout()
}

// RawPage 分页结果, 条目由调用方校验
type RawPage struct {
	Total int               `json:"total"`
	List  []json.RawMessage `json:"list"`
}

// ListMarkets 拉取一页已激活的市场 (全部类型)
func (c *Client) ListMarkets(ctx context.Context, page, limit int) (*RawPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("marketType", "2")
	q.Set("status", "activated")

	var out RawPage
	if err := c.getJSON(ctx, EndpointMarkets, c.baseURL, "/market", q, &out); err != nil {
		return nil, err
	}
	if out.List == nil {
		return nil, errors.Wrapf(errors.ErrUpstream, "market page %d: missing list", page)
	}
	return &out, nil
}

// ListUserTrades 拉取某个钱包最近的成交
func (c *Client) ListUserTrades(ctx context.Context, address string, limit int) (*RawPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("chainId", strconv.Itoa(ChainID))

	var out RawPage
	path := "/trade/user/" + url.PathEscape(address)
	if err := c.getJSON(ctx, EndpointTrades, c.baseURL, path, q, &out); err != nil {
		return nil, err
	}
	if out.List == nil {
		return nil, errors.Wrapf(errors.ErrUpstream, "trades of %s: missing list", address)
	}
	return &out, nil
}

// LatestTokenPrice 拉取某个结果代币的最新成交价
func (c *Client) LatestTokenPrice(ctx context.Context, tokenID string) (*TokenPrice, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)

	var raw json.RawMessage
	if err := c.getJSON(ctx, EndpointTokenPrice, c.baseURL, "/token/latest-price", q, &raw); err != nil {
		return nil, err
	}
	return DecodeTokenPrice(raw)
}

// Leaderboard 拉取某个指标/周期组合的前 100 名交易员
func (c *Client) Leaderboard(ctx context.Context, dataType string, period int) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", "100")
	q.Set("dataType", dataType)
	q.Set("chainId", strconv.Itoa(ChainID))
	q.Set("period", strconv.Itoa(period))

	var out struct {
		List []json.RawMessage `json:"list"`
	}
	if err := c.getJSON(ctx, EndpointLeaderboard, c.proxyURL, "/leaderboard", q, &out); err != nil {
		return nil, err
	}
	if out.List == nil {
		return nil, errors.Wrapf(errors.ErrUpstream, "leaderboard %s/%d: missing list", dataType, period)
	}
	return out.List, nil
}

// String 用于日志
func (c *Client) String() string {
	return fmt.Sprintf("upstream(%s)", c.baseURL)
}
