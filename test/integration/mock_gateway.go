package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// BuyCall 记录一次 buy 请求的关键参数与分配的合约号（用于断言）。
type BuyCall struct {
	ContractID   int64
	Amount       float64
	Basis        string
	ContractType string
	Barrier      string
	Duration     int64
	DurationUnit string
	Symbol       string
	Currency     string
}

// MockDerivServer 模拟 Deriv WebSocket 服务端（用于集成测试）：
// 按真实协议应答 authorize / balance / ticks / buy /
// proposal_open_contract 请求，所有应答都带上请求的 req_id。
// 测试侧可以主动推送行情帧与合约结算帧。
type MockDerivServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]*sync.Mutex
	tickSubs map[*websocket.Conn]bool

	// 行情参数
	symbol     string
	pipSize    int
	firstQuote string
	epoch      int64

	// 账户参数
	loginID  string
	balance  float64
	currency string

	// buy 处理
	buys         []BuyCall
	buyErrCode   string
	buyErrMsg    string
	nextContract int64
}

// NewMockDerivServer 启动模拟服务：标的 R_100、四位小数报价、
// 授权余额 1000 USD。首个 tick 在订阅应答里返回，与真实服务一致。
func NewMockDerivServer() *MockDerivServer {
	m := &MockDerivServer{
		conns:        make(map[*websocket.Conn]*sync.Mutex),
		tickSubs:     make(map[*websocket.Conn]bool),
		symbol:       "R_100",
		pipSize:      4,
		firstQuote:   "1200.0000",
		epoch:        1741687200, // 2025-03-11 10:00:00 UTC
		loginID:      "VRTC90001",
		balance:      1000,
		currency:     "USD",
		nextContract: 9001,
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.serveWS))
	return m
}

// URL 返回 ws:// 形式的接入地址，可直接填进 WSConfig.Endpoint。
func (m *MockDerivServer) URL() string {
	return "ws" + strings.TrimPrefix(m.srv.URL, "http")
}

// Close 关闭所有连接并停止服务。
func (m *MockDerivServer) Close() {
	m.mu.Lock()
	for c := range m.conns {
		c.Close()
	}
	m.mu.Unlock()
	m.srv.Close()
}

// TickSubscribers 返回已完成 ticks 订阅的连接数，测试用它等待握手完成。
func (m *MockDerivServer) TickSubscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickSubs)
}

// BuyCalls 返回收到的全部 buy 请求快照。
func (m *MockDerivServer) BuyCalls() []BuyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BuyCall, len(m.buys))
	copy(out, m.buys)
	return out
}

// FailBuys 让后续 buy 请求返回指定错误帧；code 传空恢复正常成交。
func (m *MockDerivServer) FailBuys(code, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buyErrCode = code
	m.buyErrMsg = message
}

// PushTick 向所有订阅连接推送一帧行情，epoch 按两秒一跳自动递增。
func (m *MockDerivServer) PushTick(quote string) {
	m.mu.Lock()
	ep := m.epoch
	m.epoch += 2
	subs := make([]*websocket.Conn, 0, len(m.tickSubs))
	for c := range m.tickSubs {
		subs = append(subs, c)
	}
	m.mu.Unlock()
	for _, c := range subs {
		m.send(c, m.tickFrame(quote, ep, 0))
	}
}

// SettleContract 向所有连接推送合约结算帧，status 取 won / lost。
func (m *MockDerivServer) SettleContract(contractID int64, status string, profit float64) {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	frame := map[string]any{
		"msg_type": "proposal_open_contract",
		"proposal_open_contract": map[string]any{
			"contract_id": contractID,
			"status":      status,
			"profit":      profit,
			"is_sold":     true,
		},
	}
	for _, c := range conns {
		m.send(c, frame)
	}
}

func (m *MockDerivServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.conns[conn] = &sync.Mutex{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		delete(m.tickSubs, conn)
		m.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.handle(conn, raw)
	}
}

// handle 按请求携带的字段分发，应答原样回写 req_id 以便客户端配对。
func (m *MockDerivServer) handle(conn *websocket.Conn, raw []byte) {
	req := gjson.ParseBytes(raw)
	reqID := req.Get("req_id").Int()

	switch {
	case req.Get("authorize").Exists():
		m.send(conn, map[string]any{
			"msg_type": "authorize",
			"req_id":   reqID,
			"authorize": map[string]any{
				"loginid":  m.loginID,
				"email":    "paper@example.com",
				"currency": m.currency,
				"balance":  m.balance,
			},
		})

	case req.Get("buy").Exists():
		m.handleBuy(conn, req, reqID)

	case req.Get("proposal_open_contract").Exists():
		// 订阅应答返回当前状态，买入后合约还未结算。
		m.send(conn, map[string]any{
			"msg_type": "proposal_open_contract",
			"req_id":   reqID,
			"proposal_open_contract": map[string]any{
				"contract_id": req.Get("contract_id").Int(),
				"status":      "open",
				"profit":      0,
				"is_sold":     false,
			},
		})

	case req.Get("ticks").Exists():
		m.mu.Lock()
		m.tickSubs[conn] = true
		ep := m.epoch
		m.epoch += 2
		m.mu.Unlock()
		m.send(conn, m.tickFrame(m.firstQuote, ep, reqID))

	case req.Get("balance").Exists():
		m.send(conn, map[string]any{
			"msg_type": "balance",
			"req_id":   reqID,
			"balance": map[string]any{
				"balance":  m.balance,
				"currency": m.currency,
			},
		})
	}
}

func (m *MockDerivServer) handleBuy(conn *websocket.Conn, req gjson.Result, reqID int64) {
	m.mu.Lock()
	code, msg := m.buyErrCode, m.buyErrMsg
	m.mu.Unlock()
	if code != "" {
		m.send(conn, map[string]any{
			"msg_type": "buy",
			"req_id":   reqID,
			"error":    map[string]any{"code": code, "message": msg},
		})
		return
	}

	p := req.Get("parameters")
	m.mu.Lock()
	id := m.nextContract
	m.nextContract++
	call := BuyCall{
		ContractID:   id,
		Amount:       p.Get("amount").Float(),
		Basis:        p.Get("basis").String(),
		ContractType: p.Get("contract_type").String(),
		Barrier:      p.Get("barrier").String(),
		Duration:     p.Get("duration").Int(),
		DurationUnit: p.Get("duration_unit").String(),
		Symbol:       p.Get("symbol").String(),
		Currency:     p.Get("currency").String(),
	}
	m.buys = append(m.buys, call)
	m.mu.Unlock()

	m.send(conn, map[string]any{
		"msg_type": "buy",
		"req_id":   reqID,
		"buy": map[string]any{
			"contract_id":    id,
			"transaction_id": id + 500000,
			"buy_price":      call.Amount,
			"payout":         call.Amount * 1.95,
			"longcode":       fmt.Sprintf("Win payout if the last digit of %s is %s.", call.Symbol, call.Barrier),
		},
	})
}

// tickFrame 构造一帧行情。报价用 json.RawMessage 原样下发，
// 保住 1200.0000 这类尾零，末位数字才不会被改写。
func (m *MockDerivServer) tickFrame(quote string, epoch, reqID int64) map[string]any {
	frame := map[string]any{
		"msg_type": "tick",
		"tick": map[string]any{
			"symbol":   m.symbol,
			"quote":    json.RawMessage(quote),
			"epoch":    epoch,
			"pip_size": m.pipSize,
		},
	}
	if reqID != 0 {
		frame["req_id"] = reqID
	}
	return frame
}

// send 序列化并写出一帧。写锁按连接独立，服务应答与测试推送互不踩踏。
func (m *MockDerivServer) send(conn *websocket.Conn, frame map[string]any) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	m.mu.Lock()
	wmu, ok := m.conns[conn]
	m.mu.Unlock()
	if !ok {
		return
	}
	wmu.Lock()
	conn.WriteMessage(websocket.TextMessage, raw)
	wmu.Unlock()
}
