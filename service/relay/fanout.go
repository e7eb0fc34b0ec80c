package relay

import "sync"

// Fanout is a small worker pool for broadcasts whose relative order does not
// matter (presence transitions). Message fan-out does NOT go through here:
// it is enqueued inline under the channel's send lock so per-channel order
// matches persistence-acknowledgment order.
type fanoutJob struct {
	clients []*Client
	payload []byte
}

type Fanout struct {
	jobs chan fanoutJob
	quit chan struct{}
	once sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 2
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{
		jobs: make(chan fanoutJob, queue),
		quit: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-f.quit:
					return
				default:
				}
				select {
				case <-f.quit:
					return
				case job := <-f.jobs:
					for _, c := range job.clients {
						// Slow or closed client: skip, never block the pool.
						_ = c.Enqueue(job.payload)
					}
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(clients []*Client, payload []byte) {
	if len(clients) == 0 || len(payload) == 0 {
		return
	}
	select {
	case <-f.quit:
		return
	default:
	}
	select {
	case f.jobs <- fanoutJob{clients: clients, payload: payload}:
	case <-f.quit:
	}
}

// Close stops the workers. Broadcasts after Close are dropped.
func (f *Fanout) Close() {
	f.once.Do(func() { close(f.quit) })
}
