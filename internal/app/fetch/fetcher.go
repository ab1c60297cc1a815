package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/clock"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// DefaultRetryDelay must stay below the relay's inactivity timeout.
const DefaultRetryDelay = 5 * time.Second

// ErrRetriesExhausted is matched by every *FetchError.
var ErrRetriesExhausted = errors.New("max retries exceeded retrieving metric data")

// FetchError reports a fetch that failed on every allowed attempt.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Err} }

// Result maps each series to its fetched samples in ascending timestamp order.
type Result map[domain.MetricKey][]domain.Sample

// Fetcher walks scope x entity x metric x window against a MetricSource and
// retries whole passes on failure.
type Fetcher struct {
	source      ports.MetricSource
	beater      ports.Beater
	obs         ports.Observability
	clock       clock.Clock
	newQueue    func(capacity int) ports.JobQueue
	retryCount  int
	retryDelay  time.Duration
	concurrency int
}

// New builds a Fetcher. newQueue supplies the job queue for each pass.
func New(source ports.MetricSource, beater ports.Beater, obs ports.Observability, clk clock.Clock,
	newQueue func(capacity int) ports.JobQueue, pol ports.Policy) *Fetcher {
	if clk == nil {
		clk = clock.Real()
	}
	delay := pol.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	workers := pol.FetchConcurrency
	if workers <= 0 {
		workers = 1
	}
	return &Fetcher{
		source:      source,
		beater:      beater,
		obs:         obs,
		clock:       clk,
		newQueue:    newQueue,
		retryCount:  pol.RetryCount,
		retryDelay:  delay,
		concurrency: workers,
	}
}

// FetchAll runs one complete pass over windows. With onlyLatest each series
// keeps just its newest sample. Nothing is returned from a failed pass, so a
// partial result can never advance a watermark.
//
// After a failed attempt the fetcher beats, sleeps the retry delay and beats
// again before retrying; the relay therefore never sees a gap longer than the
// delay itself. A retry count of zero retries forever.
func (f *Fetcher) FetchAll(ctx context.Context, windows []domain.TimeWindow, onlyLatest bool) (Result, error) {
	for attempt := 1; ; attempt++ {
		started := f.clock.Now()
		out, err := f.pass(ctx, windows, onlyLatest)
		if err == nil {
			f.obs.ObserveLatency(ports.MetricFetchLatency, f.clock.Now().Sub(started).Seconds())
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		f.obs.IncCounter(ports.MetricFetchErrors, 1)
		f.obs.LogError("fetch_failed", err,
			ports.Field{Key: "attempt", Value: attempt},
			ports.Field{Key: "retry_delay", Value: f.retryDelay})

		f.beater.Beat()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.clock.After(f.retryDelay):
		}
		f.beater.Beat()

		if f.retryCount > 0 && attempt >= f.retryCount {
			f.obs.LogCritical("fetch_retries_exhausted", err, ports.Field{Key: "attempts", Value: attempt})
			return nil, &FetchError{Attempts: attempt, Err: err}
		}
	}
}

func (f *Fetcher) pass(ctx context.Context, windows []domain.TimeWindow, onlyLatest bool) (Result, error) {
	jobs, err := f.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	q := f.newQueue(len(jobs))
	for _, job := range jobs {
		if !q.Enqueue(job) {
			return nil, fmt.Errorf("job queue rejected %s/%s", job.Scope, job.Entity.Name)
		}
	}

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		out      = make(Result)
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)
	metrics := f.source.ListMetrics()
	workers := f.concurrency
	if workers > len(jobs) {
		workers = len(jobs)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch := q.DequeueBatch(1)
				if len(batch) == 0 || passCtx.Err() != nil {
					return
				}
				found, err := f.fetchEntity(passCtx, batch[0], metrics, windows, onlyLatest)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
				mu.Lock()
				for k, v := range found {
					out[k] = v
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) enumerate(ctx context.Context) ([]ports.FetchJob, error) {
	scopes, err := f.source.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	var jobs []ports.FetchJob
	for _, scope := range scopes {
		entities, err := f.source.ListEntities(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("list entities in %s: %w", scope, err)
		}
		for _, e := range entities {
			jobs = append(jobs, ports.FetchJob{Scope: scope, Entity: e})
		}
	}
	return jobs, nil
}

func (f *Fetcher) fetchEntity(ctx context.Context, job ports.FetchJob, metrics []domain.MetricSpec,
	windows []domain.TimeWindow, onlyLatest bool) (Result, error) {
	out := make(Result)
	for _, m := range metrics {
		var data []domain.Sample
		for _, w := range windows {
			samples, err := f.source.Fetch(ctx, job.Scope, job.Entity, m, w)
			if err != nil {
				return nil, fmt.Errorf("fetch %s %s %s: %w", job.Scope, job.Entity.Name, m.Name, err)
			}
			data = append(data, samples...)
		}
		if len(data) == 0 {
			continue
		}

		sort.SliceStable(data, func(i, j int) bool {
			return data[i].Timestamp.Before(data[j].Timestamp)
		})
		if onlyLatest {
			data = data[len(data)-1:]
		}
		out[domain.MetricKey{Scope: job.Scope, Entity: job.Entity.Name, Metric: m.ID}] = data
	}
	return out, nil
}
