package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/internal/store/model"
)

// Ingestor handles the asynchronous persistence of route logs.
type Ingestor interface {
	Log(log *model.RouteLog)
	Start(ctx context.Context)
	Stop()
}

type IngestorOption func(*ingestor)

func WithBatchSize(n int) IngestorOption {
	return func(i *ingestor) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) IngestorOption {
	return func(i *ingestor) {
		if d > 0 {
			i.flushTime = d
		}
	}
}

func WithBufferSize(n int) IngestorOption {
	return func(i *ingestor) {
		if n > 0 {
			i.logChan = make(chan *model.RouteLog, n)
		}
	}
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	logChan   chan *model.RouteLog
	batchSize int
	flushTime time.Duration
	done      chan struct{}
	stopOnce  sync.Once
}

func NewIngestor(logger *zap.Logger, repo store.Repository, opts ...IngestorOption) Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &ingestor{
		logger:    logger,
		repo:      repo,
		logChan:   make(chan *model.RouteLog, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *ingestor) Log(log *model.RouteLog) {
	select {
	case i.logChan <- log:
	default:
		i.logger.Warn("Analytics buffer full, dropping route log", zap.String("route_id", log.ID))
	}
}

func (i *ingestor) Start(ctx context.Context) {
	go i.worker(ctx)
}

// Stop closes the buffer and waits for the pending batch to be written.
// Log must not be called after Stop.
func (i *ingestor) Stop() {
	i.stopOnce.Do(func() {
		close(i.logChan)
	})
	<-i.done
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.RouteLog, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		err := i.repo.WithTx(context.Background(), func(tx store.Repository) error {
			for _, log := range batch {
				if err := tx.Routes().Log(context.Background(), log); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// one bad row should not take the batch with it
			i.logger.Warn("Batch insert failed, retrying row by row", zap.Int("size", len(batch)), zap.Error(err))
			for _, log := range batch {
				if err := i.repo.Routes().Log(context.Background(), log); err != nil {
					i.logger.Error("Failed to persist route log", zap.String("id", log.ID), zap.Error(err))
				}
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case log, ok := <-i.logChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, log)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// drain what is already buffered
			for {
				select {
				case log, ok := <-i.logChan:
					if !ok {
						flush()
						return
					}
					batch = append(batch, log)
				default:
					flush()
					return
				}
			}
		}
	}
}
