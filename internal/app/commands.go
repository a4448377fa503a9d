package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/domain"
)

type ImportService struct {
	src       domain.ListingSource
	repo      domain.ListingRepository
	workers   int
	batchSize int
	newRunID  func() string
}

func NewImportService(src domain.ListingSource, repo domain.ListingRepository, workers, batchSize int) *ImportService {
	if workers < 1 {
		workers = 1
	}
	if batchSize < 1 {
		batchSize = 500
	}
	return &ImportService{src: src, repo: repo, workers: workers, batchSize: batchSize, newRunID: uuid.NewString}
}

type ImportReport struct {
	RunID    string        `json:"run_id"`
	Source   string        `json:"source"`
	Loaded   int           `json:"loaded"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Pruned   int64         `json:"pruned"`
	Took     time.Duration `json:"took"`
}

// Run copies the source into the repository. Invalid rows are logged as
// rejects and never written. Rows from earlier runs of the same source are
// pruned only after every batch succeeded.
func (s *ImportService) Run(ctx context.Context) (ImportReport, error) {
	start := time.Now()
	rep := ImportReport{RunID: s.newRunID(), Source: s.src.Name()}
	logger := log.With().Str("run_id", rep.RunID).Str("source", rep.Source).Logger()

	recs, err := s.src.LoadListings(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: %s: %w", domain.ErrUnavailable, rep.Source, err)
	}
	rep.Loaded = len(recs)

	accepted := make([]domain.SourcedListing, 0, len(recs))
	for i, r := range recs {
		row := i + 1
		if err := r.Validate(); err != nil {
			rep.Rejected++
			if lerr := s.repo.LogReject(ctx, rep.RunID, row, err.Error()); lerr != nil {
				logger.Warn().Int("row", row).Err(lerr).Msg("log reject failed")
			}
			continue
		}
		accepted = append(accepted, domain.SourcedListing{Source: rep.Source, Row: row, ListingRecord: r})
	}
	rep.Accepted = len(accepted)

	if err := s.writeBatches(ctx, rep.RunID, accepted); err != nil {
		observability.ObserveImport(0, rep.Rejected)
		return rep, err
	}

	pruned, err := s.repo.PruneListings(ctx, rep.Source, rep.RunID)
	if err != nil {
		return rep, err
	}
	rep.Pruned = pruned
	rep.Took = time.Since(start)
	observability.ObserveImport(rep.Accepted, rep.Rejected)

	logger.Info().
		Int("accepted", rep.Accepted).
		Int("rejected", rep.Rejected).
		Int64("pruned", rep.Pruned).
		Dur("took", rep.Took).
		Msg("import completed")
	return rep, nil
}

func (s *ImportService) writeBatches(ctx context.Context, runID string, rows []domain.SourcedListing) error {
	sem := semaphore.NewWeighted(int64(s.workers))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			setErr(err)
			break
		}

		wg.Add(1)
		go func(batch []domain.SourcedListing) {
			defer wg.Done()
			defer sem.Release(1)

			if err := s.repo.UpsertListings(ctx, runID, batch); err != nil {
				setErr(fmt.Errorf("rows %d..%d: %w", batch[0].Row, batch[len(batch)-1].Row, err))
			}
		}(rows[start:end])
	}

	wg.Wait()
	return firstErr
}
