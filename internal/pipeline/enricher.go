package pipeline

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/semaphore"

	"github.com/marmos91/muttd/internal/message"
)

// dnsCacheTTL bounds how long a reverse-DNS result is trusted before a
// lookup is retried, so a device rename is eventually observed.
const dnsCacheTTL = 10 * time.Minute

// deviceUpdater is the subset of *store.Store the Enricher needs.
type deviceUpdater interface {
	UpdateDevice(ctx context.Context, ip string, hostname, snmpVersion *string) error
}

// resolver abstracts reverse DNS so tests can substitute a fake; in
// production it is net.DefaultResolver.LookupAddr.
type resolver func(ctx context.Context, ip string) (hostname string, err error)

// Enricher resolves a message's source IP to a hostname, records it in
// the device registry, and annotates the message's metadata. A lookup runs
// in the calling goroutine, limited by a semaphore on concurrent lookups
// and by a per-lookup timeout, so an uncached lookup blocks the caller for
// up to that timeout. Successful results are cached for dnsCacheTTL;
// failed or empty lookups are not cached and are retried on every message.
type Enricher struct {
	devices  deviceUpdater
	resolve  resolver
	cache    *ristretto.Cache[string, string]
	sem      *semaphore.Weighted
	lookupTO time.Duration
	logger   *slog.Logger
}

// EnricherOption customizes Enricher construction.
type EnricherOption func(*Enricher)

// WithWorkerLimit bounds how many reverse-DNS lookups may run
// concurrently. Default 16.
func WithWorkerLimit(n int64) EnricherOption {
	return func(e *Enricher) { e.sem = semaphore.NewWeighted(n) }
}

// WithLookupTimeout bounds a single reverse-DNS attempt. Default 2s.
func WithLookupTimeout(d time.Duration) EnricherOption {
	return func(e *Enricher) { e.lookupTO = d }
}

// WithLogger sets the logger used for enrichment failures.
func WithLogger(l *slog.Logger) EnricherOption {
	return func(e *Enricher) { e.logger = l }
}

// NewEnricher builds an Enricher backed by devices for registry updates.
func NewEnricher(devices deviceUpdater, opts ...EnricherOption) (*Enricher, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 1e5,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	e := &Enricher{
		devices:  devices,
		resolve:  defaultResolve,
		cache:    cache,
		sem:      semaphore.NewWeighted(16),
		lookupTO: 2 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetResolverForTest overrides the reverse-DNS function used by e. It
// exists so tests can substitute a fake resolver without a live network.
func SetResolverForTest(e *Enricher, r func(ctx context.Context, ip string) (string, error)) {
	e.resolve = r
}

func defaultResolve(ctx context.Context, ip string) (string, error) {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// Enrich resolves msg.SourceIP, updates the device registry, and sets
// msg.Metadata["hostname"] when a hostname is found. A reverse-DNS
// failure (host unknown, timeout, invalid address) is tolerated: the
// message proceeds without a hostname.
func (e *Enricher) Enrich(ctx context.Context, msg *message.Message) {
	hostname := e.lookupHostname(ctx, msg.SourceIP)

	var hostnamePtr *string
	if hostname != "" {
		hostnamePtr = &hostname
	}

	if err := e.devices.UpdateDevice(ctx, msg.SourceIP, hostnamePtr, nil); err != nil {
		e.logger.Warn("enricher: device registry update failed", "source_ip", msg.SourceIP, "error", err)
	}

	if hostname != "" {
		msg.Metadata["hostname"] = hostname
	}
}

// lookupHostname resolves ip to a hostname, consulting and populating the
// cache, and swallowing every lookup error into an empty result.
func (e *Enricher) lookupHostname(ctx context.Context, ip string) string {
	if cached, ok := e.cache.Get(ip); ok {
		return cached
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return ""
	}
	defer e.sem.Release(1)

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTO)
	defer cancel()

	hostname, err := e.resolve(lookupCtx, ip)
	if err != nil || hostname == "" {
		return ""
	}

	e.cache.SetWithTTL(ip, hostname, 1, dnsCacheTTL)
	e.cache.Wait()
	return hostname
}
