package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/api/metrics"
	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
)

type handleFunc func(context.Context, domain.Reminder) ports.ReminderResult

// batch collects the results of one Dispatch call. Workers write into their
// own slot; once the caller gives up, late writes are dropped.
type batch struct {
	mu        sync.Mutex
	results   []ports.ReminderResult
	filled    []bool
	abandoned bool
	wg        sync.WaitGroup
}

func (b *batch) set(i int, r ports.ReminderResult) {
	b.mu.Lock()
	if !b.abandoned {
		b.results[i] = r
		b.filled[i] = true
	}
	b.mu.Unlock()
	b.wg.Done()
}

type job struct {
	ctx      context.Context
	reminder domain.Reminder
	handle   handleFunc
	index    int
	batch    *batch
}

// Dispatcher routes reminders to a fixed set of workers using consistent
// hashing on the patient id, so one patient's reminders go out in order.
type Dispatcher struct {
	workers []chan job
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan job, numWorkers),
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan job, channelBuffer)
	}
	return d
}

var _ ports.ReminderDispatcher = (*Dispatcher)(nil)

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Dispatch hands every reminder to its worker and waits for all of them. If
// ctx ends first, reminders without a result are reported as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, reminders []domain.Reminder, handle func(context.Context, domain.Reminder) ports.ReminderResult) []ports.ReminderResult {
	b := &batch{
		results: make([]ports.ReminderResult, len(reminders)),
		filled:  make([]bool, len(reminders)),
	}
	b.wg.Add(len(reminders))

	for i, r := range reminders {
		shard := d.shardIndex(r.PatientID)
		select {
		case d.workers[shard] <- job{ctx: ctx, reminder: r, handle: handle, index: i, batch: b}:
			metrics.RemindersQueueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(len(d.workers[shard])))
		case <-ctx.Done():
			b.wg.Done()
		}
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn().Err(ctx.Err()).Msg("dispatch interrupted")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.abandoned = true
	out := make([]ports.ReminderResult, len(reminders))
	for i, r := range reminders {
		if b.filled[i] {
			out[i] = b.results[i]
			continue
		}
		msg := "not dispatched"
		if err := ctx.Err(); err != nil {
			msg = err.Error()
		}
		out[i] = ports.ReminderResult{ID: r.ID, Status: domain.ReminderFailed, Error: msg}
	}
	return out
}

// shardIndex maps a patient id deterministically to a worker index.
func (d *Dispatcher) shardIndex(patientID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(patientID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan job) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-ch:
			if !ok {
				return
			}
			metrics.RemindersQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			res := j.handle(j.ctx, j.reminder)
			metrics.RemindersDispatchedTotal.WithLabelValues(string(j.reminder.Channel), string(res.Status)).Inc()
			if res.Status == domain.ReminderFailed {
				d.log.Debug().
					Str("reminder_id", j.reminder.ID).
					Int("worker_id", id).
					Msg("reminder marked failed")
			}
			j.batch.set(j.index, res)
		}
	}
}
