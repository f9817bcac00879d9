package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type manualTask struct {
	handle Handle
	due    time.Time
	fn     func()
}

// Manual is a deterministic scheduler over a clockwork.FakeClock. Callbacks run
// synchronously inside Advance, in due order, with the clock moved to each
// callback's due time before it runs.
type Manual struct {
	clock *clockwork.FakeClock

	mu    sync.Mutex
	last  Handle
	tasks []manualTask
}

// NewManual creates a manual scheduler driving clock.
func NewManual(clock *clockwork.FakeClock) *Manual {
	return &Manual{clock: clock}
}

func (m *Manual) Schedule(delay time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	m.last++
	m.tasks = append(m.tasks, manualTask{
		handle: m.last,
		due:    m.clock.Now().Add(delay),
		fn:     fn,
	})
	// stable on equal due times so FIFO order is kept
	sort.SliceStable(m.tasks, func(i, j int) bool {
		return m.tasks[i].due.Before(m.tasks[j].due)
	})
	return m.last
}

func (m *Manual) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.handle == h {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

// Advance moves virtual time forward by d, running every callback that falls
// due on the way, including callbacks scheduled by earlier callbacks.
func (m *Manual) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 || m.tasks[0].due.After(target) {
			m.mu.Unlock()
			break
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()

		if step := task.due.Sub(m.clock.Now()); step > 0 {
			m.clock.Advance(step)
		}
		task.fn()
	}
	if rest := target.Sub(m.clock.Now()); rest > 0 {
		m.clock.Advance(rest)
	}
}

// Pending returns the number of callbacks waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Now reports the current virtual time.
func (m *Manual) Now() time.Time {
	return m.clock.Now()
}
