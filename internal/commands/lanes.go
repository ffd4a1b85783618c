package commands

import "sync"

// lanes runs jobs one at a time per key, in the order they were submitted.
// A key's worker goroutine exits once its lane is empty.
type lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
}

func newLanes() *lanes {
	return &lanes{queues: make(map[string][]func())}
}

// submit queues job behind earlier jobs for key and returns a channel closed once job has run
func (l *lanes) submit(key string, job func()) <-chan struct{} {
	done := make(chan struct{})
	run := func() {
		defer close(done)
		job()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	q, busy := l.queues[key]
	l.queues[key] = append(q, run)
	if !busy {
		go l.drain(key)
	}
	return done
}

func (l *lanes) drain(key string) {
	for {
		l.mu.Lock()
		q := l.queues[key]
		if len(q) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		job := q[0]
		l.queues[key] = q[1:]
		l.mu.Unlock()

		job()
	}
}
