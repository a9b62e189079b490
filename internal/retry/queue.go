package retry

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/apssouza22/keyfetch/internal/metrics"
)

// Resolver resolves a hostname to its addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// waitReportThreshold is the delay above which the queue mentions that it is
// idling until the next task becomes due.
const waitReportThreshold = time.Second

type taskHeap []*scheduledTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].before(h[j]) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*scheduledTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// schedulingQueue is the time-ordered queue holding both task variants. It
// exclusively owns all live tasks except the single one currently borrowed.
type schedulingQueue struct {
	mu   sync.Mutex
	heap taskHeap

	resolver Resolver
	log      *slog.Logger
	now      func() time.Time
}

func (q *schedulingQueue) push(t *scheduledTask) {
	q.mu.Lock()
	heap.Push(&q.heap, t)
	q.mu.Unlock()
}

// borrow hands out the earliest-due attempt task, resolving endpoint hosts
// along the way. It returns nil once the deadline passes with nothing ready,
// or when the queue has run empty.
func (q *schedulingQueue) borrow(ctx context.Context, deadline time.Time) (*scheduledTask, error) {
	for {
		q.mu.Lock()
		if len(q.heap) == 0 {
			q.mu.Unlock()
			return nil, nil
		}
		next := q.heap[0]
		now := q.now()
		wait := next.dueAt.Sub(now)
		if wait <= 0 {
			t := heap.Pop(&q.heap).(*scheduledTask)
			q.mu.Unlock()
			switch t.kind {
			case taskAttempt:
				return t, nil
			case taskResolve:
				q.resolve(ctx, t)
				continue
			default:
				panic(fmt.Sprintf("unknown task kind %d", t.kind))
			}
		}
		q.mu.Unlock()

		// Sleep only as long as the deadline allows; once it truncates the
		// wait, nothing can become due within the budget.
		sleep := wait
		truncated := false
		if deadline.Before(now.Add(wait)) {
			sleep = deadline.Sub(now)
			truncated = true
		}
		if sleep <= 0 {
			return nil, nil
		}
		if sleep > waitReportThreshold {
			q.log.Info("waiting for next eligible address",
				"endpoint", next.endpoint.Host, "delay", sleep)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		if truncated {
			return nil, nil
		}
	}
}

// resolve turns a resolution task into attempt tasks, one per resolved
// address in randomized order. A resolution failure reschedules the task
// itself with backoff instead of propagating, so one dead DNS name never
// blocks the other endpoints.
func (q *schedulingQueue) resolve(ctx context.Context, t *scheduledTask) {
	host := t.endpoint.Hostname()
	addrs, err := q.resolver.LookupHost(ctx, host)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses for %s", host)
	}
	if err != nil {
		q.log.Info("endpoint resolution failed, backing off",
			"endpoint", t.endpoint.Host, "error", err)
		metrics.ResolutionsTotal.WithLabelValues(t.endpoint.Host, "error").Inc()
		t.reschedule(false, q.now())
		q.push(t)
		return
	}
	rand.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })
	for _, addr := range addrs {
		q.push(newAttemptTask(t, addr))
	}
	metrics.ResolutionsTotal.WithLabelValues(t.endpoint.Host, "success").Inc()
	q.log.Debug("endpoint resolved", "endpoint", t.endpoint.Host, "addresses", len(addrs))
}
