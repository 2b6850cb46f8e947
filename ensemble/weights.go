// Package ensemble 将多个信号提取器的打分融合为一次数字预测，
// 并根据交易结算结果滚动调整各提取器的权重。
package ensemble

import "digit-trader-go/market"

// DefaultAccuracySpan 滚动准确率的默认样本窗口
const DefaultAccuracySpan = 20

// accuracyRing 固定容量的结算结果环形缓冲
type accuracyRing struct {
	results  []bool
	head     int
	size     int
	capacity int
}

func newAccuracyRing(capacity int) *accuracyRing {
	return &accuracyRing{
		results:  make([]bool, capacity),
		capacity: capacity,
	}
}

func (r *accuracyRing) add(won bool) {
	if r.size < r.capacity {
		r.results[(r.head+r.size)%r.capacity] = won
		r.size++
		return
	}
	r.results[r.head] = won
	r.head = (r.head + 1) % r.capacity
}

// rate 返回窗口内的胜率，样本不足时 ok 为 false
func (r *accuracyRing) rate() (float64, bool) {
	if r.size == 0 {
		return 0, false
	}
	wins := 0
	for i := 0; i < r.size; i++ {
		if r.results[(r.head+i)%r.capacity] {
			wins++
		}
	}
	return float64(wins) / float64(r.size), true
}

// WeightStore 提取器权重与滚动准确率存储
// 权重始终非负且和为1。结算后按 weight_i = accuracy_i / Σaccuracy 重新归一，
// 准确率全为零时回退到均匀分布。不加锁，由引擎串行访问。
type WeightStore struct {
	methods []string
	weights map[string]float64
	rings   map[string]*accuracyRing
	span    int
}

// NewWeightStore 创建权重存储，初始权重为均匀分布
func NewWeightStore(methods []string, span int) *WeightStore {
	if span <= 0 {
		span = DefaultAccuracySpan
	}

	s := &WeightStore{
		methods: make([]string, len(methods)),
		weights: make(map[string]float64, len(methods)),
		rings:   make(map[string]*accuracyRing, len(methods)),
		span:    span,
	}
	copy(s.methods, methods)

	if len(methods) > 0 {
		uniform := 1.0 / float64(len(methods))
		for _, m := range methods {
			s.weights[m] = uniform
			s.rings[m] = newAccuracyRing(span)
		}
	}
	return s
}

// Weight 返回指定提取器的当前权重，未注册时为0
func (s *WeightStore) Weight(method string) float64 {
	return s.weights[method]
}

// Weights 返回当前权重的副本
func (s *WeightStore) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for m, w := range s.weights {
		out[m] = w
	}
	return out
}

// Accuracy 返回指定提取器的滚动准确率，尚无结算样本时 ok 为 false
func (s *WeightStore) Accuracy(method string) (float64, bool) {
	r, exists := s.rings[method]
	if !exists {
		return 0, false
	}
	return r.rate()
}

// MeanAccuracy 返回有结算样本的提取器的平均滚动准确率
func (s *WeightStore) MeanAccuracy() (float64, bool) {
	total := 0.0
	n := 0
	for _, m := range s.methods {
		if rate, ok := s.rings[m].rate(); ok {
			total += rate
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

// Record 记录一笔已结算交易对各提取器的检验结果并重算权重。
// votes 为出单时各提取器的数字投票，digit/direction 为实际下注内容。
// 结算只给出输赢，不给出实际跳动数字，因此按可推断性记账：
// 与下注数字一致的投票直接取交易结果；当实际数字可确定等于下注数字时
// （match 赢或 differ 输），不一致的投票必然未命中，按所押方向记对应结果；
// 其余情形无法判定，跳过不记。
func (s *WeightStore) Record(votes map[string]int, digit int, direction market.Direction, won bool) {
	for _, m := range s.methods {
		vote, voted := votes[m]
		if !voted {
			continue
		}
		result, known := hypotheticalResult(vote, digit, direction, won)
		if !known {
			continue
		}
		s.rings[m].add(result)
	}
	s.updateWeights()
}

// hypotheticalResult 推断"按该投票下同方向注"的输赢
func hypotheticalResult(vote, digit int, direction market.Direction, won bool) (result, known bool) {
	if vote == digit {
		return won, true
	}

	// 实际数字只在 match 赢或 differ 输时可确定（等于下注数字）
	actualKnown := (direction == market.DirectionMatch && won) ||
		(direction == market.DirectionDiffer && !won)
	if !actualKnown {
		return false, false
	}

	if direction == market.DirectionMatch {
		return false, true
	}
	return true, true
}

// updateWeights 按滚动准确率重新归一权重
func (s *WeightStore) updateWeights() {
	totalAccuracy := 0.0
	withData := 0
	for _, m := range s.methods {
		if rate, ok := s.rings[m].rate(); ok {
			totalAccuracy += rate
			withData++
		}
	}
	if withData == 0 {
		return
	}

	if totalAccuracy <= 0 {
		// 全部准确率为零，回退到均匀分布
		uniform := 1.0 / float64(len(s.methods))
		for _, m := range s.methods {
			s.weights[m] = uniform
		}
		return
	}

	for _, m := range s.methods {
		if rate, ok := s.rings[m].rate(); ok {
			s.weights[m] = rate / totalAccuracy
		}
	}

	// 无样本的提取器保留旧权重，整体再归一到和为1
	sum := 0.0
	for _, m := range s.methods {
		sum += s.weights[m]
	}
	if sum > 0 {
		for _, m := range s.methods {
			s.weights[m] /= sum
		}
	}
}
