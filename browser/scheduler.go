package browser

import (
	"container/heap"
	"time"
)

// minInterval is the floor applied to repeating timers.
const minInterval = 10 * time.Millisecond

// task is a unit of queued page work: a timer callback, a network
// completion or a dynamic script load.
type task struct {
	id       int64
	seq      int64
	due      time.Time
	interval time.Duration // > 0 for setInterval
	run      func()
	index    int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	return q[i].seq < q[j].seq
}
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// scheduler orders page tasks by due time, FIFO among equal times.
// It is only touched from the goroutine driving the page.
type scheduler struct {
	queue   taskQueue
	byID    map[int64]*task
	nextID  int64
	seq     int64
	oneShot int // queued tasks that are not repeating timers
	now     func() time.Time
}

func newScheduler() *scheduler {
	return &scheduler{byID: make(map[int64]*task), now: time.Now}
}

// add queues fn after delay. A positive interval makes it repeat.
func (s *scheduler) add(delay, interval time.Duration, fn func()) int64 {
	if delay < 0 {
		delay = 0
	}
	if interval > 0 && interval < minInterval {
		interval = minInterval
	}
	s.nextID++
	t := &task{id: s.nextID, interval: interval, run: fn}
	s.push(t, s.now().Add(delay))
	return t.id
}

func (s *scheduler) push(t *task, due time.Time) {
	s.seq++
	t.seq = s.seq
	t.due = due
	s.byID[t.id] = t
	if t.interval == 0 {
		s.oneShot++
	}
	heap.Push(&s.queue, t)
}

// cancel removes a queued task; unknown ids are ignored.
func (s *scheduler) cancel(id int64) {
	t, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	if t.index >= 0 {
		heap.Remove(&s.queue, t.index)
		if t.interval == 0 {
			s.oneShot--
		}
	}
}

// peek returns the earliest task without removing it.
func (s *scheduler) peek() *task {
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

// runNext removes the earliest task, runs it and requeues it when it
// repeats and was not cancelled while running.
func (s *scheduler) runNext() {
	t := heap.Pop(&s.queue).(*task)
	if t.interval == 0 {
		s.oneShot--
		delete(s.byID, t.id)
	}
	t.run()
	if t.interval > 0 {
		if _, live := s.byID[t.id]; live {
			s.push(t, s.now().Add(t.interval))
		}
	}
}

// busy reports whether one-shot work is queued. Repeating timers alone
// never keep a page busy.
func (s *scheduler) busy() bool {
	return s.oneShot > 0
}

// clear drops every queued task.
func (s *scheduler) clear() {
	s.queue = nil
	s.byID = make(map[int64]*task)
	s.oneShot = 0
}
