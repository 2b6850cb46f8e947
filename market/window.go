package market

// Window 维护最近 capacity 条 Tick 的环形缓冲。
// 追加与淘汰均为 O(1)；读取返回按时间顺序的拷贝，调用方无法改写内部状态。
// Window 本身不加锁，由引擎串行访问。
type Window struct {
	buf      []Tick
	head     int // 最老元素的位置
	size     int
	capacity int
}

// NewWindow 创建容量为 capacity 的窗口；capacity<=0 时使用 500。
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 500
	}
	return &Window{
		buf:      make([]Tick, capacity),
		capacity: capacity,
	}
}

// Append 追加一条 tick；窗口满时淘汰最老的一条。
func (w *Window) Append(t Tick) {
	if w.size < w.capacity {
		w.buf[(w.head+w.size)%w.capacity] = t
		w.size++
		return
	}
	w.buf[w.head] = t
	w.head = (w.head + 1) % w.capacity
}

// Len 返回当前样本数。
func (w *Window) Len() int { return w.size }

// Cap 返回窗口容量。
func (w *Window) Cap() int { return w.capacity }

// Last 返回最新一条 tick；窗口为空时 ok 为 false。
func (w *Window) Last() (Tick, bool) {
	if w.size == 0 {
		return Tick{}, false
	}
	return w.buf[(w.head+w.size-1)%w.capacity], true
}

// Digits 返回全部数字的时间序拷贝。
func (w *Window) Digits() []int {
	out := make([]int, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%w.capacity].Digit
	}
	return out
}

// Prices 返回全部价格的时间序拷贝（float64）。
func (w *Window) Prices() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%w.capacity].PriceFloat()
	}
	return out
}

// LastDigits 返回最近 n 个数字的时间序拷贝；n 超过样本数时返回全部。
func (w *Window) LastDigits(n int) []int {
	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	start := w.size - n
	for i := 0; i < n; i++ {
		out[i] = w.buf[(w.head+start+i)%w.capacity].Digit
	}
	return out
}

// LastPrices 返回最近 n 个价格的时间序拷贝；n 超过样本数时返回全部。
func (w *Window) LastPrices(n int) []float64 {
	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	start := w.size - n
	for i := 0; i < n; i++ {
		out[i] = w.buf[(w.head+start+i)%w.capacity].PriceFloat()
	}
	return out
}
