package queue

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Task is one unit of realtime work bound to a room.
type Task struct {
	RoomID string
	Run    func(ctx context.Context) error
}

// Dispatcher routes realtime event handling to a fixed set of workers using
// consistent hashing on the room ID. Events for one room are therefore
// handled to completion in order, while different rooms interleave freely.
type Dispatcher struct {
	workers []chan Task
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan Task, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan Task, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a task to the worker responsible for its room. Tasks with no
// room (e.g. refreshApiKey) shard on the empty key, which is fine: they have
// no per-room ordering requirement.
func (d *Dispatcher) Enqueue(task Task) {
	d.workers[d.shardIndex(task.RoomID)] <- task
}

// shardIndex maps a room ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(roomID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan Task) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-ch:
			if !ok {
				return
			}
			if err := task.Run(ctx); err != nil {
				d.log.Error().Err(err).
					Str("room_id", task.RoomID).
					Int("worker_id", id).
					Msg("event handling failed")
			}
		}
	}
}
