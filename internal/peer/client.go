package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fedmail/backend/internal/domain"
)

const relayTokenHeader = "X-Relay-Token"

// Client 是调用对端域传播引擎的 HTTP 客户端。
//
// 对每个对端域只做一次尽力而为的调用：逐个候选端点尝试，
// 首个成功即返回；全部失败由上层记录为该域不可达。
type Client struct {
	httpClient *http.Client
	token      string // 共享中继令牌，随每个请求发送

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // 对端域 -> 限流器
	peerRate rate.Limit
}

// NewClient 创建对端客户端。
//
// timeout 为单次 HTTP 调用超时；perSecond 限制对单个对端域的调用速率。
func NewClient(timeout time.Duration, token string, perSecond int) *Client {
	if perSecond <= 0 {
		perSecond = 50
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		limiters:   make(map[string]*rate.Limiter),
		peerRate:   rate.Limit(perSecond),
	}
}

// ForwardMessage 将完整消息投递到对端域的入站转发接口。
//
// 返回对端报告的本地投递失败地址列表。
func (c *Client) ForwardMessage(ctx context.Context, peerDomain, endpoint string, msg *domain.Message) ([]string, error) {
	if err := c.limiter(peerDomain).Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	url := strings.TrimRight(endpoint, "/") + "/internal/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setToken(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", endpoint, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forward to %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var result struct {
		Failed []string `json:"failed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode forward response: %w", err)
	}
	return result.Failed, nil
}

// ForwardDelete 将删除指令传递到对端域的入站转发删除接口。
func (c *Client) ForwardDelete(ctx context.Context, peerDomain, endpoint string, id int64) error {
	if err := c.limiter(peerDomain).Wait(ctx); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/v1/messages/%d", strings.TrimRight(endpoint, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.setToken(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward delete to %s: %w", endpoint, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("forward delete to %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return nil
}

func (c *Client) setToken(req *http.Request) {
	if c.token != "" {
		req.Header.Set(relayTokenHeader, c.token)
	}
}

func (c *Client) limiter(peerDomain string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	lim, ok := c.limiters[peerDomain]
	if !ok {
		lim = rate.NewLimiter(c.peerRate, int(c.peerRate))
		c.limiters[peerDomain] = lim
	}
	return lim
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
