package channel

import (
	"context"
	"errors"
)

// CallFunc sends payload to one destination and returns its response.
type CallFunc func(ctx context.Context, dest Addr) ([]byte, error)

type callResult struct {
	idx   int
	value []byte
	err   error
}

func expectedResponses(mode SendMode, n int) int {
	switch mode {
	case GetAll:
		return n
	case GetMajority:
		return n/2 + 1
	}
	return 0
}

// Gather fans a request out to dests and collects one Rsp per destination, in
// destination order. Destinations for which isMember returns false are reported as
// suspected without being called. Calls failing with ErrUnreachable are reported as
// suspected. Failures, responses rejected by the request filter and calls still
// running when the request ends are reported as not received, and do not count toward
// the expected responses.
// In GetNone mode, calls are started in the background and Gather returns nil.
func Gather(ctx context.Context, req Request, dests []Addr, isMember func(Addr) bool, call CallFunc) []Rsp {
	if req.Mode == GetNone {
		for _, dest := range dests {
			if !isMember(dest) {
				continue
			}
			go func(dest Addr) {
				callCtx := context.Background()
				if req.Timeout > 0 {
					var cancel context.CancelFunc
					callCtx, cancel = context.WithTimeout(callCtx, req.Timeout)
					defer cancel()
				}
				call(callCtx, dest)
			}(dest)
		}
		return nil
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	rsps := make([]Rsp, len(dests))
	results := make(chan callResult, len(dests))
	pending := 0
	for idx, dest := range dests {
		rsps[idx].Sender = dest
		if !isMember(dest) {
			rsps[idx].Suspected = true
			continue
		}
		pending++
		go func(idx int, dest Addr) {
			value, err := call(ctx, dest)
			results <- callResult{idx: idx, value: value, err: err}
		}(idx, dest)
	}
	expected := expectedResponses(req.Mode, pending)
	received := 0
	for pending > 0 && received < expected {
		select {
		case <-ctx.Done():
			return rsps
		case res := <-results:
			pending--
			if res.err != nil {
				if errors.Is(res.err, ErrUnreachable) {
					rsps[res.idx].Suspected = true
				}
				continue
			}
			acceptable := req.Filter == nil || req.Filter.IsAcceptable(res.value, rsps[res.idx].Sender)
			if acceptable {
				received++
				rsps[res.idx].Received = true
				rsps[res.idx].Value = res.value
			}
			if req.Filter != nil && !req.Filter.NeedMoreResponses() {
				return rsps
			}
		}
	}
	return rsps
}
