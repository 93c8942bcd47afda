package mesh

import "sync"

// orderedQueue runs jobs one at a time, in push order. No goroutine is kept while the
// queue is empty.
type orderedQueue struct {
	mtx     sync.Mutex
	jobs    []func()
	running bool
}

func (q *orderedQueue) push(job func()) {
	q.mtx.Lock()
	q.jobs = append(q.jobs, job)
	if q.running {
		q.mtx.Unlock()
		return
	}
	q.running = true
	q.mtx.Unlock()
	go q.drain()
}

func (q *orderedQueue) drain() {
	for {
		q.mtx.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mtx.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mtx.Unlock()
		job()
	}
}
