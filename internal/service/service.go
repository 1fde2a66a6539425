package service

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"apples-watch/internal/alerting"
	"apples-watch/internal/fetcher"
	"apples-watch/internal/metrics"
	"apples-watch/internal/offers"
	"apples-watch/internal/parser"
)

// ErrAllSinksFailed is returned when every configured writer failed for a run.
var ErrAllSinksFailed = errors.New("all configured sinks failed")

// SnapshotWriter persists one run's selections.
type SnapshotWriter interface {
	Name() string
	WriteSnapshot(ctx context.Context, snap offers.Snapshot) error
}

// AlertEvaluator applies alert rules to a snapshot.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, snap offers.Snapshot) ([]alerting.Event, error)
}

// SinkResult is the outcome of one writer.
type SinkResult struct {
	Name string
	Err  error
}

// Result summarises one run.
type Result struct {
	RunID    string
	Snapshot offers.Snapshot
	Offers   []offers.Offer
	Eligible []offers.Offer
	Stats    parser.Stats
	Sinks    []SinkResult
	Events   []alerting.Event
}

// Service orchestrates fetching, parsing, selection, persistence, and alerting.
type Service struct {
	sourceURL string
	fetcher   fetcher.DocumentFetcher
	parser    *parser.Parser
	writers   []SnapshotWriter
	evaluator AlertEvaluator
	recorder  *metrics.Recorder
	logger    zerolog.Logger

	now   func() time.Time
	newID func() string
}

// New constructs the pipeline. evaluator and recorder may be nil.
func New(sourceURL string, docs fetcher.DocumentFetcher, p *parser.Parser, writers []SnapshotWriter, evaluator AlertEvaluator, recorder *metrics.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		sourceURL: sourceURL,
		fetcher:   docs,
		parser:    p,
		writers:   writers,
		evaluator: evaluator,
		recorder:  recorder,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RunOnce executes a single scrape. Fetch and document errors are fatal; writer
// and alert failures are logged, and only a failure of every writer is returned.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	start := s.now()
	res := Result{RunID: s.newID()}
	log := s.logger.With().Str("run_id", res.RunID).Logger()

	body, err := s.fetcher.FetchDocument(ctx, s.sourceURL)
	if err != nil {
		log.Error().Err(err).Str("stage", "fetch").Msg("fetch failed")
		s.finish(res, start, false)
		return res, err
	}

	parsed, stats, err := s.parser.Parse(bytes.NewReader(body), s.sourceURL)
	if err != nil {
		log.Error().Err(err).Str("stage", "parse").Msg("document not recognised")
		s.finish(res, start, false)
		return res, err
	}
	res.Offers = parsed
	res.Stats = stats

	res.Eligible = offers.FilterEligible(parsed)
	res.Snapshot = offers.NewSnapshot(res.RunID, start, s.sourceURL, res.Eligible)

	if s.recorder != nil {
		s.recorder.ObserveParse(stats.Rows, stats.Parsed, stats.Dropped, len(res.Eligible))
	}

	logSelection(log, res, stats)

	sinkErr := s.persist(ctx, log, &res)

	if s.evaluator != nil {
		events, evalErr := s.evaluator.Evaluate(ctx, res.Snapshot)
		if evalErr != nil {
			log.Error().Err(evalErr).Str("stage", "alert").Msg("alert evaluation failed")
		}
		res.Events = events
		if s.recorder != nil {
			s.recorder.ObserveAlerts(len(events))
		}
	}

	s.finish(res, start, sinkErr == nil)
	return res, sinkErr
}

func (s *Service) persist(ctx context.Context, log zerolog.Logger, res *Result) error {
	if len(s.writers) == 0 {
		log.Info().Str("stage", "persist").Msg("no sinks configured; nothing persisted")
		return nil
	}
	if res.Snapshot.Empty() {
		log.Info().Str("stage", "persist").Msg("no selections; nothing persisted")
		return nil
	}

	failed := 0
	for _, w := range s.writers {
		err := w.WriteSnapshot(ctx, res.Snapshot)
		res.Sinks = append(res.Sinks, SinkResult{Name: w.Name(), Err: err})
		if s.recorder != nil {
			s.recorder.ObserveSink(w.Name(), err)
		}
		if err != nil {
			failed++
			log.Error().Err(err).Str("stage", "persist").Str("sink", w.Name()).Msg("sink write failed")
			continue
		}
		log.Info().Str("stage", "persist").Str("sink", w.Name()).Int("rows", len(res.Snapshot.Selections())).Msg("snapshot written")
	}

	if failed == len(s.writers) {
		return ErrAllSinksFailed
	}
	return nil
}

func (s *Service) finish(res Result, start time.Time, success bool) {
	if s.recorder == nil {
		return
	}
	if res.Snapshot.Overall != nil {
		s.recorder.ObserveOverall(res.Snapshot.Overall.Offer.Price, true)
	}
	end := s.now()
	s.recorder.ObserveRun(end.Sub(start), success, end)
}

func logSelection(log zerolog.Logger, res Result, stats parser.Stats) {
	event := log.Info().
		Str("stage", "select").
		Int("rows", stats.Rows).
		Int("parsed", stats.Parsed).
		Int("dropped", stats.Dropped).
		Int("eligible", len(res.Eligible)).
		Int("terms", len(res.Snapshot.TermBest))
	if res.Snapshot.Overall == nil {
		event.Msg("no eligible offers")
		return
	}
	overall := res.Snapshot.Overall.Offer
	event.Str("supplier", overall.Supplier).
		Str("price", overall.Price.String()).
		Msg("overall selection")
}
