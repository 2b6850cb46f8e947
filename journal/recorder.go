package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
)

// Recorder 把落库挪到后台协程，行情线程只做一次入队。
// 队列满时丢弃记录并告警，磁盘慢不能拖住 tick 处理。
type Recorder struct {
	j   *Journal
	log *logger.Logger

	ch      chan recorderOp
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

type recorderOp struct {
	decision *DecisionRecord
	outcome  *OutcomeRecord
}

// NewRecorder 启动后台写入协程。buffer <= 0 时取 256。
func NewRecorder(j *Journal, log *logger.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.NewNop()
	}
	r := &Recorder{
		j:    j,
		log:  log,
		ch:   make(chan recorderOp, buffer),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

// Decision 入队一笔决策记录。
func (r *Recorder) Decision(rec DecisionRecord) {
	r.enqueue(recorderOp{decision: &rec})
}

// Outcome 入队一笔结算记录。
func (r *Recorder) Outcome(rec OutcomeRecord) {
	r.enqueue(recorderOp{outcome: &rec})
}

// Close 停止接收并等待队列清空。
func (r *Recorder) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.closeMu.Unlock()
	<-r.done
}

func (r *Recorder) enqueue(op recorderOp) {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	select {
	case r.ch <- op:
	default:
		r.log.Warn("Journal backlog full, record dropped")
	}
	r.closeMu.Unlock()
}

func (r *Recorder) loop() {
	defer close(r.done)
	for op := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		switch {
		case op.decision != nil:
			err = r.j.RecordDecision(ctx, op.decision)
		case op.outcome != nil:
			err = r.j.RecordOutcome(ctx, op.outcome)
		}
		cancel()
		if err != nil {
			r.log.Warn("Journal write failed", zap.Error(err))
		}
	}
}
