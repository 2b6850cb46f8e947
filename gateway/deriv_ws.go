package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
)

// DefaultEndpoint 是 Deriv WebSocket API 的生产地址。
const DefaultEndpoint = "wss://ws.derivws.com/websockets/v3"

// DefaultAppID 是 Deriv 公共演示 app_id，生产环境应替换为自己注册的 ID。
const DefaultAppID = "1089"

// ErrNotConnected 表示当前没有可用连接。
var ErrNotConnected = errors.New("deriv: not connected")

// StreamHandler 接收网关推送的行情与合约事件。
// 回调在读协程内同步执行，耗时操作会阻塞整条流。
type StreamHandler interface {
	OnTick(ev TickEvent)
	OnContract(up ContractUpdate)
}

// Caller 发送一次请求并等待对应回应。DerivWS 实现该接口。
type Caller interface {
	Call(ctx context.Context, req map[string]any) ([]byte, error)
}

// WSConfig 配置 Deriv WebSocket 客户端。
type WSConfig struct {
	Endpoint string // 默认 DefaultEndpoint
	AppID    string // 默认 DefaultAppID
	Token    string // 为空则匿名连接，只能订阅行情
	Symbol   string // 订阅的合成指数，如 R_100

	DialTimeout  time.Duration // 默认 10s
	PingInterval time.Duration // 默认 15s
	ReadTimeout  time.Duration // 默认 30s
	WriteTimeout time.Duration // 默认 5s
	CallTimeout  time.Duration // 默认 10s

	// OnConnect 在每次握手并完成订阅后同步调用，可用于恢复合约订阅。
	OnConnect func()
	// OnDisconnect 在连接断开后、重连等待前调用。
	OnDisconnect func(err error)

	Limiter RateLimiter
	Dialer  *websocket.Dialer
	Logger  *logger.Logger
}

// WSStats 是连接运行统计。
type WSStats struct {
	Connects       int64
	Reconnects     int64
	TicksSeen      int64
	ContractEvents int64
	CallErrors     int64
	LastError      string
}

// DerivWS 维护到 Deriv 的单条 WebSocket 连接：
// 自动重连、鉴权、订阅行情，并把请求/回应按 req_id 配对。
type DerivWS struct {
	cfg     WSConfig
	dialer  *websocket.Dialer
	limiter RateLimiter
	log     *logger.Logger

	reqSeq int64

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan []byte

	writeMu sync.Mutex

	balanceMu sync.RWMutex
	balance   float64
	hasBal    bool
	currency  string

	statsMu sync.Mutex
	stats   WSStats
}

// NewDerivWS 构建客户端。Symbol 必填。
func NewDerivWS(cfg WSConfig) (*DerivWS, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	g := &DerivWS{
		cfg:     cfg,
		dialer:  cfg.Dialer,
		limiter: cfg.Limiter,
		log:     cfg.Logger,
		pending: make(map[int64]chan []byte),
	}
	if g.dialer == nil {
		g.dialer = &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	}
	if g.limiter == nil {
		g.limiter = NewTokenBucketLimiter(5, 5)
	}
	if g.log == nil {
		g.log = logger.NewNop()
	}
	return g, nil
}

// Run 保持连接直到 ctx 取消。断开后按指数退避重连，上限 30s。
func (g *DerivWS) Run(ctx context.Context, handler StreamHandler) error {
	if handler == nil {
		return fmt.Errorf("handler required")
	}
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		err := g.session(ctx, handler, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.noteError(err)
		if g.cfg.OnDisconnect != nil {
			g.cfg.OnDisconnect(err)
		}
		g.log.Warn("Deriv stream disconnected",
			zap.Error(err),
			zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		g.statsMu.Lock()
		g.stats.Reconnects++
		g.statsMu.Unlock()
	}
}

// session 建立一次连接并消费消息，返回时连接已关闭。
func (g *DerivWS) session(ctx context.Context, handler StreamHandler, connected func()) error {
	endpoint, err := g.endpointURL()
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	conn, _, err := g.dialer.DialContext(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial deriv: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	})

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.conn = nil
		g.failPending()
		g.mu.Unlock()
	}()

	// 读协程先行，握手请求的回应也经由它配对。
	readErr := make(chan error, 1)
	go g.readLoop(conn, handler, readErr)

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go g.pingLoop(pingCtx, conn)

	if err := g.handshake(ctx, handler); err != nil {
		return err
	}

	g.statsMu.Lock()
	g.stats.Connects++
	g.statsMu.Unlock()
	connected()
	g.log.Info("Deriv stream connected",
		zap.String("symbol", g.cfg.Symbol),
		zap.Bool("authorized", g.cfg.Token != ""))
	if g.cfg.OnConnect != nil {
		g.cfg.OnConnect()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-readErr:
		return err
	}
}

// handshake 鉴权并订阅行情与余额。
func (g *DerivWS) handshake(ctx context.Context, handler StreamHandler) error {
	if g.cfg.Token != "" {
		raw, err := g.Call(ctx, map[string]any{"authorize": g.cfg.Token})
		if err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		auth, err := ParseAuthorize(raw)
		if err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		g.setBalance(auth.Balance, auth.Currency)
		g.log.Info("Deriv authorized",
			zap.String("loginid", auth.LoginID),
			zap.String("currency", auth.Currency),
			zap.Float64("balance", auth.Balance))
		if _, err := g.Call(ctx, map[string]any{"balance": 1, "subscribe": 1}); err != nil {
			return fmt.Errorf("subscribe balance: %w", err)
		}
	}
	// 订阅回应本身就是首个 tick 帧，直接转给 handler，不能丢。
	raw, err := g.Call(ctx, map[string]any{"ticks": g.cfg.Symbol, "subscribe": 1})
	if err != nil {
		return fmt.Errorf("subscribe ticks: %w", err)
	}
	if ev, err := ParseTick(raw); err == nil {
		g.statsMu.Lock()
		g.stats.TicksSeen++
		g.statsMu.Unlock()
		handler.OnTick(ev)
	}
	return nil
}

func (g *DerivWS) readLoop(conn *websocket.Conn, handler StreamHandler, readErr chan<- error) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout)); err != nil {
			readErr <- err
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		g.route(raw, handler)
	}
}

func (g *DerivWS) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(g.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// route 先按 req_id 配对等待中的请求，订阅后续推送再按 msg_type 分发。
// 订阅流的每帧都回显 req_id，等待者取走首帧后其余帧自然落到分发分支。
func (g *DerivWS) route(raw []byte, handler StreamHandler) {
	if id := RequestID(raw); id != 0 {
		g.mu.Lock()
		ch, ok := g.pending[id]
		if ok {
			delete(g.pending, id)
		}
		g.mu.Unlock()
		if ok {
			ch <- raw
			return
		}
	}
	switch MessageType(raw) {
	case MsgTick:
		ev, err := ParseTick(raw)
		if err != nil {
			g.log.Warn("Malformed tick frame", zap.Error(err))
			return
		}
		g.statsMu.Lock()
		g.stats.TicksSeen++
		g.statsMu.Unlock()
		handler.OnTick(ev)
	case MsgContract:
		up, err := ParseContract(raw)
		if err != nil {
			g.log.Warn("Malformed contract frame", zap.Error(err))
			return
		}
		g.statsMu.Lock()
		g.stats.ContractEvents++
		g.statsMu.Unlock()
		handler.OnContract(up)
	case MsgBalance:
		bal, err := ParseBalance(raw)
		if err != nil {
			g.log.Warn("Malformed balance frame", zap.Error(err))
			return
		}
		g.setBalance(bal.Balance, bal.Currency)
	default:
		if apiErr := FrameError(raw); apiErr != nil {
			g.log.Warn("Deriv pushed error", zap.String("code", apiErr.Code), zap.String("message", apiErr.Message))
		}
	}
}

// Call 发送请求并等待回应。回应帧带 error 对象时返回 *APIError。
func (g *DerivWS) Call(ctx context.Context, req map[string]any) ([]byte, error) {
	id := atomic.AddInt64(&g.reqSeq, 1)
	req["req_id"] = id
	ch := make(chan []byte, 1)

	g.mu.Lock()
	conn := g.conn
	if conn == nil {
		g.mu.Unlock()
		return nil, ErrNotConnected
	}
	g.pending[id] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal deriv request: %w", err)
	}
	g.limiter.Wait()
	g.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	g.writeMu.Unlock()
	if err != nil {
		g.noteCallError()
		return nil, fmt.Errorf("write deriv request: %w", err)
	}

	timer := time.NewTimer(g.cfg.CallTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if apiErr := FrameError(raw); apiErr != nil {
			g.noteCallError()
			return nil, apiErr
		}
		return raw, nil
	case <-timer.C:
		g.noteCallError()
		return nil, fmt.Errorf("deriv call timed out after %s", g.cfg.CallTimeout)
	}
}

// Balance 返回最近一次推送的账户余额。
func (g *DerivWS) Balance() (float64, bool) {
	g.balanceMu.RLock()
	defer g.balanceMu.RUnlock()
	return g.balance, g.hasBal
}

// Currency 返回账户币种，未鉴权时为空串。
func (g *DerivWS) Currency() string {
	g.balanceMu.RLock()
	defer g.balanceMu.RUnlock()
	return g.currency
}

// Stats 返回运行统计快照。
func (g *DerivWS) Stats() WSStats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	return g.stats
}

func (g *DerivWS) endpointURL() (string, error) {
	u, err := url.Parse(g.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("app_id", g.cfg.AppID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (g *DerivWS) setBalance(balance float64, currency string) {
	g.balanceMu.Lock()
	g.balance = balance
	g.hasBal = true
	if currency != "" {
		g.currency = currency
	}
	g.balanceMu.Unlock()
}

// failPending 关闭所有等待通道，调用方必须持有 g.mu。
func (g *DerivWS) failPending() {
	for id, ch := range g.pending {
		close(ch)
		delete(g.pending, id)
	}
}

func (g *DerivWS) noteError(err error) {
	if err == nil {
		return
	}
	g.statsMu.Lock()
	g.stats.LastError = err.Error()
	g.statsMu.Unlock()
}

func (g *DerivWS) noteCallError() {
	g.statsMu.Lock()
	g.stats.CallErrors++
	g.statsMu.Unlock()
}
