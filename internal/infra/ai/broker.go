package ai

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/infra/cache"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// Future is the result of a Request. It resolves exactly once.
type Future struct {
	done   chan struct{}
	handle string
	err    error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(handle string, err error) {
	f.handle, f.err = handle, err
	close(f.done)
}

// Poll reports the result if it is there. It never blocks.
func (f *Future) Poll() (string, bool, error) {
	select {
	case <-f.done:
		return f.handle, true, f.err
	default:
		return "", false, nil
	}
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.handle, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Broker runs generation off the tick loop. Requests for a key already in the cache
// resolve at once; concurrent requests for the same key share one generation.
type Broker struct {
	gen     ContentGenerator
	cache   *cache.AssetCache
	timeout time.Duration
	log     *logger.Logger

	flight singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker creates a broker. Each generation gets at most timeout.
func NewBroker(gen ContentGenerator, c *cache.AssetCache, timeout time.Duration, log *logger.Logger) *Broker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{gen: gen, cache: c, timeout: timeout, log: log, ctx: ctx, cancel: cancel}
}

// Request starts generating content for key and returns immediately.
func (b *Broker) Request(key, description, style string) *Future {
	f := newFuture()
	if a, ok := b.cache.Get(key); ok {
		metrics.Get().RecordAsset(true, nil, 0)
		f.resolve(a.Handle, nil)
		return f
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		v, err, _ := b.flight.Do(key, func() (interface{}, error) {
			return b.generate(key, description, style)
		})
		handle, _ := v.(string)
		f.resolve(handle, err)
	}()
	return f
}

func (b *Broker) generate(key, description, style string) (string, error) {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	start := time.Now()
	res, err := b.gen.Generate(ctx, key, description, style)
	if err == nil && ctx.Err() != nil {
		err = simerr.Wrap(simerr.CodeGeneration, "generate "+key, ctx.Err())
	}
	if err != nil {
		metrics.Get().RecordAsset(false, err, 0)
		b.log.Warnf("asset %s failed after %s: %v", key, time.Since(start).Round(time.Millisecond), err)
		return "", err
	}

	b.cache.Put(res.Asset)
	metrics.Get().RecordAsset(false, nil, res.CostUSD)
	b.log.Infof("asset %s ready as %s ($%.4f)", key, res.Asset.Handle, res.CostUSD)
	return res.Asset.Handle, nil
}

// Lookup resolves a handle to its content.
func (b *Broker) Lookup(handle string) (cache.Asset, bool) {
	return b.cache.ByHandle(handle)
}

// Close cancels running generations and waits for them to resolve.
func (b *Broker) Close() {
	b.cancel()
	b.wg.Wait()
}
