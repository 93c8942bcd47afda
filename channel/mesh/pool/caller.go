package pool

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/btree"
	grpc "google.golang.org/grpc"
)

var (
	ErrPoolNotFound = errors.New("pool not found")
)

// Caller keeps one Pool per peer address.
type Caller struct {
	pools *btree.BTree
	mutex sync.Mutex
	opts  []grpc.DialOption
}

func (p *Pool) Less(remote btree.Item) bool {
	return strings.Compare(p.address, remote.(*Pool).address) == -1
}

func NewCaller(opts ...grpc.DialOption) *Caller {
	return &Caller{
		pools: btree.New(2),
		opts:  opts,
	}
}

func (c *Caller) Call(addr string, job RPCJob) error {
	c.mutex.Lock()
	data := c.pools.Get(&Pool{address: addr})
	if data == nil {
		newpool, err := NewPool(context.Background(), addr, c.opts...)
		if err != nil {
			c.mutex.Unlock()
			return err
		}
		c.pools.ReplaceOrInsert(newpool)
		data = newpool
	}
	c.mutex.Unlock()
	return data.(*Pool).Call(job)
}

func (c *Caller) Cancel(addr string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	pool := c.pools.Get(&Pool{address: addr})
	if pool == nil {
		return ErrPoolNotFound
	}
	pool.(*Pool).Cancel()
	c.pools.Delete(pool)
	return nil
}

// Len returns the number of open pools.
func (c *Caller) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pools.Len()
}

// Close closes every pool.
func (c *Caller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pools.Ascend(func(item btree.Item) bool {
		item.(*Pool).Cancel()
		return true
	})
	c.pools.Clear(false)
}
