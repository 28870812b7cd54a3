// Package daemon wires every subsystem together and owns the process
// lifecycle: startup order, the three persistent tasks, and graceful
// shutdown on SIGINT/SIGTERM.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marmos91/muttd/internal/archive"
	"github.com/marmos91/muttd/internal/buffer"
	"github.com/marmos91/muttd/internal/config"
	"github.com/marmos91/muttd/internal/credential"
	"github.com/marmos91/muttd/internal/listener/snmp"
	"github.com/marmos91/muttd/internal/listener/syslog"
	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/metrics"
	"github.com/marmos91/muttd/internal/pipeline"
	"github.com/marmos91/muttd/internal/queue"
	"github.com/marmos91/muttd/internal/rules"
	"github.com/marmos91/muttd/internal/store"
)

// stoppable is satisfied by every listener regardless of transport.
type stoppable interface {
	Stop()
}

// Daemon owns every long-lived component and the three persistent tasks
// that drive the pipeline.
type Daemon struct {
	cfg *config.Config

	store     *store.Store
	queue     *queue.Queue
	fileBuf   *buffer.FileBuffer
	archive   *archive.Manager
	matcher   *rules.Matcher
	enricher  *pipeline.Enricher
	router    *pipeline.Router
	depthMon  *queue.DepthMonitor
	listeners []stoppable

	syslogListener *syslog.Listener
	snmpListener   *snmp.Listener

	metrics       *metrics.Registry
	metricsServer *metrics.Server

	logger *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds every component in the documented startup order but does not
// start any goroutine; call Run for that. Of the sockets, only the syslog
// listener's is bound here (by syslog.New); the SNMP and metrics sockets
// are bound by Run.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storeCfg := store.Config{Driver: store.Driver(cfg.Storage.Driver)}
	if storeCfg.Driver == store.DriverPostgres {
		storeCfg.PostgresDSN = cfg.Storage.DBPath
	} else {
		storeCfg.SQLitePath = cfg.Storage.DBPath
	}

	st, err := store.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("daemon: open store: %w", err)
	}

	fileBuf, err := buffer.New(cfg.Storage.BufferDir, buffer.DefaultFlushThreshold, logger.With("component", "buffer"))
	if err != nil {
		return nil, fmt.Errorf("daemon: open file buffer: %w", err)
	}

	archiveMgr := archive.New(st, cfg.Storage.ArchiveDir)

	allRules, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: load rules: %w", err)
	}
	matcher := rules.NewMatcher(allRules)

	enricher, err := pipeline.NewEnricher(st, pipeline.WithLogger(logger.With("component", "enricher")))
	if err != nil {
		return nil, fmt.Errorf("daemon: build enricher: %w", err)
	}

	router := pipeline.NewRouter(logger.With("component", "router"))
	router.Register(rules.ActionDiscard, func(_ context.Context, _ message.Message, _ []rules.AlertRule) error {
		return nil
	})
	router.Register(rules.ActionWebhook, func(_ context.Context, msg message.Message, matched []rules.AlertRule) error {
		names := make([]string, len(matched))
		for i, r := range matched {
			names[i] = r.Name
		}
		logger.Info("webhook action dispatched", "message_id", msg.ID, "rules", names)
		return nil
	})

	q := queue.New(queue.DefaultCapacity)
	depthMon := queue.NewDepthMonitor(logger.With("component", "queue"))

	var metricsReg *metrics.Registry
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsReg = metrics.New()
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		metricsSrv = metrics.NewServer(addr, metricsReg, logger.With("component", "metrics"))
	}

	d := &Daemon{
		cfg:           cfg,
		store:         st,
		queue:         q,
		fileBuf:       fileBuf,
		archive:       archiveMgr,
		matcher:       matcher,
		enricher:      enricher,
		router:        router,
		depthMon:      depthMon,
		metrics:       metricsReg,
		metricsServer: metricsSrv,
		logger:        logger,
	}

	if err := d.buildListeners(); err != nil {
		_ = st.Close()
		return nil, err
	}

	return d, nil
}

// buildListeners constructs every enabled listener. syslog.New binds its
// socket here; the SNMP listener binds only when Run calls its Serve.
func (d *Daemon) buildListeners() error {
	cfg := d.cfg

	if cfg.Listeners.Syslog.Enabled {
		l, err := syslog.New(cfg.Listeners.Syslog.Host, cfg.Listeners.Syslog.Port, d.queue, d.logger.With("component", "syslog"))
		if err != nil {
			return fmt.Errorf("daemon: start syslog listener: %w", err)
		}
		d.listeners = append(d.listeners, l)
		d.syslogListener = l
	}

	if cfg.Listeners.SNMP.Enabled {
		var opts []snmp.Option
		if cfg.SNMPv3CredentialsFile != "" {
			sets, err := credential.LoadFile(cfg.SNMPv3CredentialsFile)
			if err != nil {
				return fmt.Errorf("daemon: load snmpv3 credentials: %w", err)
			}
			for username, set := range sets {
				opts = append(opts, snmp.WithV3Credentials(username, set))
				break // gosnmp's TrapListener carries a single USM identity; first configured user wins
			}
		}

		l, err := snmp.New(cfg.Listeners.SNMP.Host, cfg.Listeners.SNMP.Port, cfg.Listeners.SNMP.Communities, d.queue, d.store, d.logger.With("component", "snmp"), opts...)
		if err != nil {
			return fmt.Errorf("daemon: build snmp listener: %w", err)
		}
		d.listeners = append(d.listeners, l)
		d.snmpListener = l
	}

	return nil
}

// Run starts every listener and the three persistent tasks, then blocks
// until ctx is cancelled. On return every component has been flushed and
// closed.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	if d.syslogListener != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.syslogListener.Serve(ctx)
		}()
	}

	if d.snmpListener != nil {
		if err := d.snmpListener.Serve(ctx); err != nil {
			return fmt.Errorf("daemon: start snmp listener: %w", err)
		}
	}

	if d.metricsServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsServer.Serve(ctx); err != nil {
				d.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	d.wg.Add(3)
	go func() { defer d.wg.Done(); d.processLoop(ctx) }()
	go func() { defer d.wg.Done(); d.batchWriteLoop(ctx) }()
	go func() { defer d.wg.Done(); d.archiveLoop(ctx) }()

	<-ctx.Done()
	d.wg.Wait()

	return d.finalFlush(context.Background())
}

// Stop cancels every persistent task. Run's caller is responsible for
// invoking this exactly once (typically from a signal handler).
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// processLoop implements the per-message pipeline: validate, match,
// enrich, route, and (unless discarded) persist to the file buffer.
func (d *Daemon) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.processOne(ctx)
	}
}

// processOne dequeues and runs at most one message through the pipeline.
// It returns false when the dequeue timed out or ctx was cancelled, with
// no message processed.
func (d *Daemon) processOne(ctx context.Context) bool {
	msg, ok := d.queue.Dequeue(ctx)
	d.depthMon.Check(d.queue.Depth())
	d.metrics.SetQueueDepth(d.queue.Depth())
	d.metrics.SetQueueDropped(d.queue.Dropped())
	if !ok {
		return false
	}

	if !pipeline.Validate(&msg) {
		d.logger.Warn("dropped invalid message", "message_id", msg.ID, "errors", msg.Metadata["validation_errors"])
		d.metrics.DropMessage()
		return true
	}
	d.metrics.IngestMessage(string(msg.Type))

	matched := d.matcher.Match(msg.Payload)
	d.enricher.Enrich(ctx, &msg)
	discard := d.router.Route(ctx, msg, matched)
	if discard {
		d.metrics.DiscardMessage()
		return true
	}

	if err := d.fileBuf.Write(msg); err != nil {
		d.logger.Error("buffer write failed", "message_id", msg.ID, "error", err)
	}
	return true
}

// batchWriteLoop periodically flushes the file buffer into the store.
func (d *Daemon) batchWriteLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.BatchWriteInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.flushToStore(ctx)
		}
	}
}

func (d *Daemon) flushToStore(ctx context.Context) {
	msgs, err := d.fileBuf.Flush()
	if err != nil {
		d.logger.Error("buffer flush failed", "error", err)
		return
	}
	for _, msg := range msgs {
		err := d.store.StoreMessage(ctx, msg)
		d.metrics.RecordStoreWrite(err == nil)
		if err != nil {
			d.logger.Error("store message failed", "message_id", msg.ID, "error", err)
		}
	}
}

// archiveLoop rotates aged rows into dated archive files once a day.
func (d *Daemon) archiveLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := d.archive.ArchiveOld(ctx, d.cfg.RetentionPeriod())
			d.metrics.RecordArchiveRun(err == nil)
			if err != nil {
				d.logger.Error("archive run failed", "error", err)
			}
		}
	}
}

// finalFlush performs the documented shutdown sequence: one last buffer
// flush to the store, stop every listener, then close the store.
func (d *Daemon) finalFlush(ctx context.Context) error {
	d.flushToStore(ctx)

	for _, l := range d.listeners {
		l.Stop()
	}
	if d.metricsServer != nil {
		d.metricsServer.Stop()
	}

	if err := d.store.Close(); err != nil {
		return fmt.Errorf("daemon: close store: %w", err)
	}
	return nil
}
