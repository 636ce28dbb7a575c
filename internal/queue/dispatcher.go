// Package queue provides a worker pool that runs delivery pipelines off
// the update loop, so the transport keeps servicing other users while a
// fetch is in flight.
package queue

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
)

var (
	// ErrQueueFull is returned when the request queue is at capacity.
	ErrQueueFull = errors.New("request queue is full")
	// ErrDispatcherStopped is returned when trying to enqueue after the dispatcher is stopped.
	ErrDispatcherStopped = errors.New("dispatcher has been stopped")
)

// Request is one queued delivery.
type Request struct {
	UserID int64
	URL    string
	Kind   domain.MediaKind
}

// Processor runs one delivery to completion.
type Processor func(req Request)

// Dispatcher manages a pool of workers that process delivery requests.
type Dispatcher struct {
	reqChan    chan Request
	workerWg   sync.WaitGroup
	numWorkers int
	processor  Processor
	stopped    atomic.Bool
}

// NewDispatcher creates a Dispatcher with the given configuration.
func NewDispatcher(numWorkers, queueSize int, processor Processor) *Dispatcher {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 10
	}

	return &Dispatcher{
		reqChan:    make(chan Request, queueSize),
		numWorkers: numWorkers,
		processor:  processor,
	}
}

// Start starts the worker pool.
func (d *Dispatcher) Start() {
	slog.Info("Starting dispatcher",
		"workers", d.numWorkers,
		"queue_size", cap(d.reqChan),
	)

	for i := 0; i < d.numWorkers; i++ {
		d.workerWg.Add(1)
		go d.worker(i)
	}
}

// worker processes requests until the channel is closed.
func (d *Dispatcher) worker(id int) {
	defer d.workerWg.Done()

	slog.Debug("Worker started", "worker_id", id)

	for req := range d.reqChan {
		slog.Debug("Worker processing request",
			"worker_id", id,
			"user_id", req.UserID,
			"kind", req.Kind,
		)
		if d.processor != nil {
			d.processor(req)
		}
	}

	slog.Debug("Worker stopped", "worker_id", id)
}

// Enqueue adds a request to the queue without blocking.
// Returns ErrQueueFull if the queue is at capacity.
func (d *Dispatcher) Enqueue(req Request) error {
	if d.stopped.Load() {
		return ErrDispatcherStopped
	}

	select {
	case d.reqChan <- req:
		slog.Debug("Request enqueued",
			"user_id", req.UserID,
			"queue_size", len(d.reqChan),
		)
		return nil
	default:
		slog.Warn("Queue is full",
			"user_id", req.UserID,
			"queue_size", len(d.reqChan),
		)
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	if d.stopped.Swap(true) {
		return // Already stopped
	}

	slog.Info("Stopping dispatcher...")

	close(d.reqChan)
	d.workerWg.Wait()

	slog.Info("Dispatcher stopped")
}

// QueueSize returns the current number of queued requests.
func (d *Dispatcher) QueueSize() int {
	return len(d.reqChan)
}

// WorkerCount returns the number of workers.
func (d *Dispatcher) WorkerCount() int {
	return d.numWorkers
}
