// Package sync drives incremental extraction: it partitions the span
// between a stream's bookmark and now into day-sized windows, drains each
// window through the paginated client, and writes the bookmark through
// after every completed window so a crash repeats at most one partial
// window.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/helmsync/shipstation-tap/pkg/catalog"
	"github.com/helmsync/shipstation-tap/pkg/client"
	"github.com/helmsync/shipstation-tap/pkg/state"
)

var (
	windowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipstation_sync_windows_total",
		Help: "Sync windows processed by stream and result",
	}, []string{"stream", "result"})

	recordsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipstation_sync_records_emitted_total",
		Help: "Records emitted by stream",
	}, []string{"stream"})

	bookmarkTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shipstation_sync_bookmark_timestamp_seconds",
		Help: "Committed bookmark as a unix timestamp by stream",
	}, []string{"stream"})
)

const (
	// bookmarkLayout is the persisted bookmark timestamp format.
	bookmarkLayout = "2006-01-02 15:04:05"

	// windowParamLayout is the date format the API accepts in window
	// boundary query parameters.
	windowParamLayout = "2006-01-02"

	// DefaultTimezone anchors window boundaries. The API interprets
	// date parameters in US Pacific time.
	DefaultTimezone = "America/Los_Angeles"

	// DefaultLookbackDays bounds the initial sync when neither bookmark
	// nor start date is set.
	DefaultLookbackDays = 30

	// DefaultWindowSize is the maximum window span.
	DefaultWindowSize = 24 * time.Hour
)

// Pager iterates pages of records for one windowed request.
type Pager interface {
	Next() bool
	Records() []client.Record
	Err() error
}

// Source issues windowed, paginated requests. *client.Client satisfies it
// through the clientSource adapter. Errors, including an unknown endpoint,
// surface through the returned Pager's Err.
type Source interface {
	Paginate(ctx context.Context, endpoint string, params client.Params) Pager
}

// Emitter receives the sync output: schemas, records, and state snapshots.
type Emitter interface {
	EmitSchema(stream catalog.Stream) error
	Emit(stream string, record map[string]any) error
	EmitState(bookmarks map[string]map[string]string) error
}

// WindowParams names the query parameters carrying a window's boundaries
// for one stream.
type WindowParams struct {
	Start string
	End   string
}

// Config controls the window loop.
type Config struct {
	// StartDate bounds the first sync when no bookmark exists. Accepts
	// the same layouts as stored bookmarks.
	StartDate string

	// LookbackDays applies when neither bookmark nor StartDate is set.
	LookbackDays int

	// WindowSize caps each window's span.
	WindowSize time.Duration

	// Timezone is the IANA zone window boundaries are computed in.
	Timezone string

	// WindowParams maps stream IDs to their boundary parameter names.
	// Streams absent from the map cannot be extracted incrementally;
	// their bookmark is advanced without fetching.
	WindowParams map[string]WindowParams

	// TimestampCandidates lists, per stream, the canonical timestamp
	// field followed by its fallbacks.
	TimestampCandidates map[string][]string

	// BypassTransform emits records exactly as received, skipping schema
	// projection. Meant for debugging field drift.
	BypassTransform bool

	// DebugSample logs the first record of each stream at debug level.
	DebugSample bool

	// OneDayHorizon restricts each stream to its first window. Meant for
	// smoke-testing a deployment without replaying the full span.
	OneDayHorizon bool
}

// DefaultConfig returns a Config for the built-in streams.
func DefaultConfig() Config {
	return Config{
		LookbackDays: DefaultLookbackDays,
		WindowSize:   DefaultWindowSize,
		Timezone:     DefaultTimezone,
		WindowParams: map[string]WindowParams{
			"shipments": {Start: "created_at_start", End: "created_at_end"},
			"orders":    {Start: "created_at_start", End: "created_at_end"},
		},
		TimestampCandidates: map[string][]string{
			"orders": {"createDate", "orderDate", "modifyDate"},
		},
	}
}

// Syncer runs the window loop for each selected stream.
type Syncer struct {
	source  Source
	store   state.Store
	emitter Emitter
	config  Config
	logger  zerolog.Logger
	loc     *time.Location
	now     func() time.Time
}

// New creates a Syncer. The configured timezone must resolve.
func New(source Source, store state.Store, emitter Emitter, cfg Config, logger zerolog.Logger) (*Syncer, error) {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", cfg.Timezone, err)
	}

	return &Syncer{
		source:  source,
		store:   store,
		emitter: emitter,
		config:  cfg,
		logger:  logger,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// NewClientSource adapts a *client.Client to the Source interface.
func NewClientSource(c *client.Client) Source {
	return clientSource{c}
}

type clientSource struct {
	client *client.Client
}

func (s clientSource) Paginate(ctx context.Context, endpoint string, params client.Params) Pager {
	return s.client.Paginate(ctx, endpoint, params)
}

// Run syncs every selected stream in catalog order. A stream failure is
// logged and the remaining streams still run; an authentication failure
// aborts the whole run since no stream can succeed without credentials.
func (s *Syncer) Run(ctx context.Context, cat *catalog.Catalog) error {
	var failed []string
	for _, stream := range cat.Selected() {
		if err := s.SyncStream(ctx, stream); err != nil {
			if isAuthError(err) || ctx.Err() != nil {
				return fmt.Errorf("syncing %s: %w", stream.ID, err)
			}
			s.logger.Error().Err(err).Str("stream", stream.ID).Msg("Stream sync failed")
			failed = append(failed, stream.ID)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("sync finished with failed streams: %v", failed)
	}
	return nil
}

// SyncStream runs the window loop for one stream. Each drained window
// commits the bookmark to the window's end before the next window starts.
// A failed window is skipped: later windows are still fetched and their
// records emitted, but the bookmark stays pinned before the gap so the
// next run retries it. Skipped windows are not an error; only failures
// that make the stream itself unusable (credentials, emission, state)
// surface to the caller.
func (s *Syncer) SyncStream(ctx context.Context, stream catalog.Stream) error {
	horizonEnd := s.now().In(s.loc)
	horizonStart, err := s.horizonStart(ctx, stream.ID, horizonEnd)
	if err != nil {
		return err
	}

	params, supported := s.config.WindowParams[stream.ID]
	if !supported {
		s.logger.Warn().
			Str("stream", stream.ID).
			Msg("Stream does not support windowed extraction, advancing bookmark without fetching")
		return s.commitBookmark(ctx, stream.ID, horizonEnd)
	}

	windows := partition(horizonStart, horizonEnd, s.config.WindowSize)
	if s.config.OneDayHorizon && len(windows) > 1 {
		windows = windows[:1]
	}
	if len(windows) == 0 {
		s.logger.Info().Str("stream", stream.ID).Msg("Bookmark already current, nothing to sync")
		return nil
	}

	s.logger.Info().
		Str("stream", stream.ID).
		Time("horizon_start", horizonStart).
		Time("horizon_end", horizonEnd).
		Int("windows", len(windows)).
		Msg("Starting stream sync")

	if err := s.emitter.EmitSchema(stream); err != nil {
		return fmt.Errorf("emitting schema for %s: %w", stream.ID, err)
	}

	gapped := false
	skipped := 0
	sampled := false
	for _, window := range windows {
		count, err := s.syncWindow(ctx, stream, params, window, &sampled)
		if err != nil {
			if isAuthError(err) || isEmitError(err) || ctx.Err() != nil {
				return err
			}
			windowsTotal.WithLabelValues(stream.ID, "failed").Inc()
			gapped = true
			skipped++
			s.logger.Error().Err(err).
				Str("stream", stream.ID).
				Time("window_start", window.Start).
				Time("window_end", window.End).
				Msg("Window failed, skipping")
			continue
		}

		windowsTotal.WithLabelValues(stream.ID, "ok").Inc()
		s.logger.Debug().
			Str("stream", stream.ID).
			Time("window_start", window.Start).
			Time("window_end", window.End).
			Int("records", count).
			Msg("Window drained")

		// Committing past a failed window would let the next run skip
		// its records forever.
		if gapped {
			continue
		}
		if err := s.commitBookmark(ctx, stream.ID, window.End); err != nil {
			return err
		}
	}

	if gapped {
		s.logger.Warn().
			Str("stream", stream.ID).
			Int("skipped_windows", skipped).
			Msg("Stream finished with skipped windows, bookmark held back for the next run")
	}
	return nil
}

func (s *Syncer) syncWindow(ctx context.Context, stream catalog.Stream, wp WindowParams, window Window, sampled *bool) (int, error) {
	params := client.Params{
		wp.Start: window.Start.Format(windowParamLayout),
		wp.End:   window.End.Format(windowParamLayout),
	}

	pages := s.source.Paginate(ctx, stream.ID, params)

	count := 0
	for pages.Next() {
		for _, record := range pages.Records() {
			var rawKeys []string
			if s.config.DebugSample && !*sampled {
				rawKeys = recordKeys(record)
			}

			out := s.transformRecord(stream, record)

			if rawKeys != nil {
				*sampled = true
				s.logger.Debug().
					Str("stream", stream.ID).
					Strs("raw_keys", rawKeys).
					Strs("emitted_keys", recordKeys(out)).
					Msg("First record sample")
			}

			if err := s.emitter.Emit(stream.ID, out); err != nil {
				// Output failure, not an upstream one: skipping the
				// window would silently drop records downstream.
				return count, &emitError{fmt.Errorf("emitting record: %w", err)}
			}
			count++
			recordsEmitted.WithLabelValues(stream.ID).Inc()
		}
	}
	return count, pages.Err()
}

func (s *Syncer) transformRecord(stream catalog.Stream, record client.Record) client.Record {
	normalizeTimestamp(record, s.config.TimestampCandidates[stream.ID])
	if s.config.BypassTransform {
		return record
	}
	return shape(record, stream.Schema)
}

// horizonStart resolves where this run's extraction begins: the stored
// bookmark, then the configured start date, then the lookback default.
func (s *Syncer) horizonStart(ctx context.Context, stream string, horizonEnd time.Time) (time.Time, error) {
	value, ok, err := s.store.Bookmark(ctx, stream)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading bookmark for %s: %w", stream, err)
	}
	if ok {
		if t, parsed := s.parseInZone(value); parsed {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("unparseable bookmark for %s: %q", stream, value)
	}

	if s.config.StartDate != "" {
		t, parsed := s.parseInZone(s.config.StartDate)
		if !parsed {
			return time.Time{}, fmt.Errorf("unparseable start date %q", s.config.StartDate)
		}
		return t, nil
	}

	return horizonEnd.AddDate(0, 0, -s.config.LookbackDays), nil
}

// commitBookmark writes the bookmark through and emits a state snapshot.
func (s *Syncer) commitBookmark(ctx context.Context, stream string, at time.Time) error {
	value := at.In(s.loc).Format(bookmarkLayout)
	if err := s.store.SetBookmark(ctx, stream, value); err != nil {
		return fmt.Errorf("committing bookmark for %s: %w", stream, err)
	}
	bookmarkTimestamp.WithLabelValues(stream).Set(float64(at.Unix()))

	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshotting state: %w", err)
	}
	if err := s.emitter.EmitState(snapshot); err != nil {
		return fmt.Errorf("emitting state: %w", err)
	}

	s.logger.Info().
		Str("stream", stream).
		Str("bookmark", value).
		Msg("Bookmark committed")
	return nil
}

// parseInZone parses zone-less timestamps in the sync timezone; layouts
// carrying an explicit offset keep it.
func (s *Syncer) parseInZone(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, s.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isAuthError(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Class == client.ErrorClassAuth
}

// recordKeys returns a record's field names, sorted.
func recordKeys(record client.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// emitError marks a failure of the output stream itself.
type emitError struct {
	err error
}

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

func isEmitError(err error) bool {
	var emitErr *emitError
	return errors.As(err, &emitErr)
}
