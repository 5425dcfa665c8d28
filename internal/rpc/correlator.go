package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dsf/internal/domain"
)

const correlatorShards = 32

// Result is delivered to a waiting caller.
type Result struct {
	Response Response
	Err      error
}

// Correlator matches responses to waiting callers by request id.
// Locking is per shard so unrelated requests never contend.
type Correlator struct {
	shards [correlatorShards]correlatorShard
}

type correlatorShard struct {
	mu      sync.Mutex
	waiters map[uint64]chan Result
}

// NewCorrelator creates an empty correlation table.
func NewCorrelator() *Correlator {
	c := &Correlator{}
	for i := range c.shards {
		c.shards[i].waiters = make(map[uint64]chan Result)
	}
	return c
}

func (c *Correlator) shard(reqID uint64) *correlatorShard {
	return &c.shards[reqID%correlatorShards]
}

// Register adds a waiter for reqID. The returned channel receives exactly one
// result unless the waiter is cancelled first.
func (c *Correlator) Register(reqID uint64) (<-chan Result, error) {
	s := c.shard(reqID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.waiters[reqID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateRequest, reqID)
	}
	ch := make(chan Result, 1)
	s.waiters[reqID] = ch
	return ch, nil
}

func (c *Correlator) take(reqID uint64) (chan Result, bool) {
	s := c.shard(reqID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.waiters[reqID]
	if ok {
		delete(s.waiters, reqID)
	}
	return ch, ok
}

// Resolve hands resp to its waiter and removes the entry. Unmatched or
// duplicate responses are dropped and Resolve returns false.
func (c *Correlator) Resolve(resp Response) bool {
	ch, ok := c.take(resp.ReqID)
	if !ok {
		return false
	}
	ch <- Result{Response: resp}
	return true
}

// Fail resolves the waiter with err and removes the entry.
func (c *Correlator) Fail(reqID uint64, err error) bool {
	ch, ok := c.take(reqID)
	if !ok {
		return false
	}
	ch <- Result{Err: err}
	return true
}

// Timeout resolves the waiter with domain.ErrTimeout.
func (c *Correlator) Timeout(reqID uint64) bool {
	return c.Fail(reqID, fmt.Errorf("%w: request %d", domain.ErrTimeout, reqID))
}

// Cancel removes the waiter without resolving it. A later response for the
// same id is unmatched.
func (c *Correlator) Cancel(reqID uint64) {
	c.take(reqID)
}

// FailAll resolves every pending waiter with err.
func (c *Correlator) FailAll(err error) int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, ch := range s.waiters {
			ch <- Result{Err: err}
			delete(s.waiters, id)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Pending returns the number of outstanding waiters.
func (c *Correlator) Pending() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.waiters)
		s.mu.Unlock()
	}
	return n
}

// Wait blocks until the waiter for reqID is resolved or ctx is done. On
// ctx expiry the entry is removed; a deadline maps to domain.ErrTimeout.
func (c *Correlator) Wait(ctx context.Context, reqID uint64, ch <-chan Result) (Response, error) {
	select {
	case r := <-ch:
		return r.Response, r.Err
	case <-ctx.Done():
		c.Cancel(reqID)
		// a result may have raced in before the entry was removed
		select {
		case r := <-ch:
			return r.Response, r.Err
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w: request %d", domain.ErrTimeout, reqID)
		}
		return Response{}, ctx.Err()
	}
}
