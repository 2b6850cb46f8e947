package gateway

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Deriv API 消息类型（msg_type 字段）。
const (
	MsgAuthorize = "authorize"
	MsgBalance   = "balance"
	MsgTick      = "tick"
	MsgBuy       = "buy"
	MsgContract  = "proposal_open_contract"
)

// 合约结算状态。
const (
	ContractOpen = "open"
	ContractWon  = "won"
	ContractLost = "lost"
	ContractSold = "sold"
)

// APIError 是 Deriv 返回的业务错误（帧中携带 error 对象）。
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deriv api error %s: %s", e.Code, e.Message)
}

// FrameError 检查帧中的 error 对象。Deriv 在出错时仍带原请求的 msg_type，
// 只能靠 error 字段区分成败。没有错误返回 nil。
func FrameError(raw []byte) *APIError {
	errObj := gjson.GetBytes(raw, "error")
	if !errObj.Exists() {
		return nil
	}
	return &APIError{
		Code:    errObj.Get("code").String(),
		Message: errObj.Get("message").String(),
	}
}

// MessageType 返回帧的 msg_type，缺失时为空串。
func MessageType(raw []byte) string {
	return gjson.GetBytes(raw, "msg_type").String()
}

// RequestID 返回帧回显的 req_id，缺失时为 0。
func RequestID(raw []byte) int64 {
	return gjson.GetBytes(raw, "req_id").Int()
}

// TickEvent 是一次行情跳动。Quote 保留交易所发来的原始文本，
// 末尾补零的小数位不能丢，否则个位数字会解析错。
type TickEvent struct {
	Symbol  string
	Quote   string
	Epoch   int64
	PipSize int
}

// ParseTick 解析 tick 帧。
func ParseTick(raw []byte) (TickEvent, error) {
	tick := gjson.GetBytes(raw, "tick")
	if !tick.Exists() {
		return TickEvent{}, fmt.Errorf("tick payload missing")
	}
	quote := tick.Get("quote")
	if !quote.Exists() {
		return TickEvent{}, fmt.Errorf("tick quote missing")
	}
	ev := TickEvent{
		Symbol:  tick.Get("symbol").String(),
		Quote:   rawNumber(quote),
		Epoch:   tick.Get("epoch").Int(),
		PipSize: int(tick.Get("pip_size").Int()),
	}
	if ev.Symbol == "" {
		return TickEvent{}, fmt.Errorf("tick symbol missing")
	}
	return ev, nil
}

// AuthorizeResult 是鉴权成功后的账户信息。
type AuthorizeResult struct {
	LoginID  string
	Email    string
	Currency string
	Balance  float64
}

// ParseAuthorize 解析 authorize 帧。
func ParseAuthorize(raw []byte) (AuthorizeResult, error) {
	auth := gjson.GetBytes(raw, "authorize")
	if !auth.Exists() {
		return AuthorizeResult{}, fmt.Errorf("authorize payload missing")
	}
	res := AuthorizeResult{
		LoginID:  auth.Get("loginid").String(),
		Email:    auth.Get("email").String(),
		Currency: auth.Get("currency").String(),
		Balance:  auth.Get("balance").Float(),
	}
	if res.LoginID == "" {
		return AuthorizeResult{}, fmt.Errorf("authorize loginid missing")
	}
	return res, nil
}

// BalanceUpdate 是账户余额推送。
type BalanceUpdate struct {
	Balance  float64
	Currency string
}

// ParseBalance 解析 balance 帧。
func ParseBalance(raw []byte) (BalanceUpdate, error) {
	bal := gjson.GetBytes(raw, "balance")
	if !bal.Exists() {
		return BalanceUpdate{}, fmt.Errorf("balance payload missing")
	}
	return BalanceUpdate{
		Balance:  bal.Get("balance").Float(),
		Currency: bal.Get("currency").String(),
	}, nil
}

// BuyConfirm 是买入合约的确认。
type BuyConfirm struct {
	ContractID    int64
	TransactionID int64
	BuyPrice      float64
	Payout        float64
	Longcode      string
}

// ParseBuy 解析 buy 帧。
func ParseBuy(raw []byte) (BuyConfirm, error) {
	buy := gjson.GetBytes(raw, "buy")
	if !buy.Exists() {
		return BuyConfirm{}, fmt.Errorf("buy payload missing")
	}
	res := BuyConfirm{
		ContractID:    buy.Get("contract_id").Int(),
		TransactionID: buy.Get("transaction_id").Int(),
		BuyPrice:      buy.Get("buy_price").Float(),
		Payout:        buy.Get("payout").Float(),
		Longcode:      buy.Get("longcode").String(),
	}
	if res.ContractID == 0 {
		return BuyConfirm{}, fmt.Errorf("buy contract_id missing")
	}
	return res, nil
}

// ContractUpdate 是 proposal_open_contract 推送的合约状态。
type ContractUpdate struct {
	ContractID int64
	Status     string
	Profit     float64
	IsSold     bool
}

// Settled 报告合约是否已出结果。
func (c ContractUpdate) Settled() bool {
	return c.Status == ContractWon || c.Status == ContractLost
}

// Won 报告合约是否盈利结算。
func (c ContractUpdate) Won() bool {
	return c.Status == ContractWon
}

// ParseContract 解析 proposal_open_contract 帧。
func ParseContract(raw []byte) (ContractUpdate, error) {
	poc := gjson.GetBytes(raw, "proposal_open_contract")
	if !poc.Exists() {
		return ContractUpdate{}, fmt.Errorf("proposal_open_contract payload missing")
	}
	res := ContractUpdate{
		ContractID: poc.Get("contract_id").Int(),
		Status:     poc.Get("status").String(),
		Profit:     poc.Get("profit").Float(),
		IsSold:     poc.Get("is_sold").Bool(),
	}
	if res.ContractID == 0 {
		return ContractUpdate{}, fmt.Errorf("proposal_open_contract contract_id missing")
	}
	return res, nil
}

// rawNumber 取数值字段的原始文本。交易所偶尔会把报价编码成字符串，
// 两种情况都归一成不带引号的文本。
func rawNumber(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}
