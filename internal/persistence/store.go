// Package persistence implements spec §4.7's durable state: the on/off
// switch, rain delay, and per-schedule launch timestamps are written to a
// local JSON file at most once per second, and optionally mirrored to an
// S3-compatible remote depot. The local atomic-write style and the remote
// client shape are grounded on the host project's reliability package
// (restore_service.go's staging/rename discipline and r2_client.go's S3 SDK
// wiring), trimmed from full database backup/restore down to a single
// small JSON blob. RestoreIfMissing is a single-phase simplification of
// restore_service.go's pending-restore-flag dance: there is only one small
// file to restore, so staging it separately before swapping it in buys
// nothing.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/metrics"
	"github.com/rs/zerolog"
)

// Source supplies the live values to persist. The app wires this to the
// schedule evaluator.
type Source interface {
	GlobalOn() bool
	Rain() domain.RainDelay
	Snapshot() []domain.Schedule
}

// writeGiveUp is how long Periodic keeps retrying a failing write before
// escalating and dropping the pending change (spec §4.7).
const writeGiveUp = 10 * time.Second

// Store debounces writes of the durable state to a local file, at most once
// per second, and marks itself dirty whenever MarkChanged is called.
type Store struct {
	mu           sync.Mutex
	path         string
	source       Source
	dirty        bool
	lastSave     time.Time
	failingSince time.Time // zero when the last attempted write succeeded
	log          zerolog.Logger

	depot *DepotClient // nil when no remote depot is configured
}

// New creates a Store writing to path. depot may be nil.
func New(path string, source Source, depot *DepotClient, log zerolog.Logger) *Store {
	return &Store{
		path:   path,
		source: source,
		depot:  depot,
		log:    log.With().Str("component", "persistence").Logger(),
	}
}

// MarkChanged flags the state as dirty so the next Periodic tick persists it.
func (s *Store) MarkChanged() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Periodic writes the state to disk if dirty and at least one second has
// elapsed since the last write (spec §4.7). A write failure leaves the
// state dirty so the next tick retries; after writeGiveUp of continuous
// failure the pending write is dropped and the failure escalated to an
// Error log, rather than retrying forever.
func (s *Store) Periodic(now time.Time) {
	s.mu.Lock()
	if !s.dirty || now.Sub(s.lastSave) < time.Second {
		s.mu.Unlock()
		return
	}
	s.lastSave = now
	s.mu.Unlock()

	err := s.saveLocal()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.dirty = false
		s.failingSince = time.Time{}
		metrics.PersistenceSaves.Inc()
		return
	}

	if s.failingSince.IsZero() {
		s.failingSince = now
	}
	if now.Sub(s.failingSince) >= writeGiveUp {
		s.dirty = false
		s.failingSince = time.Time{}
		s.log.Error().Err(err).Dur("retried_for", writeGiveUp).Msg("giving up persisting state after repeated write failures")
		return
	}
	s.log.Warn().Err(err).Msg("failed to persist state, will retry")
}

func (s *Store) snapshot() domain.PersistedState {
	schedules := s.source.Snapshot()
	entries := make([]domain.PersistedScheduleEntry, len(schedules))
	for i, sc := range schedules {
		entries[i] = domain.PersistedScheduleEntry{ID: sc.ID, Launched: sc.LastLaunch}
	}
	rain := s.source.Rain()
	raindelay := int64(0)
	if rain.Enabled {
		raindelay = rain.Deadline
	}
	return domain.PersistedState{
		On:        s.source.GlobalOn(),
		RainDelay: raindelay,
		Schedule:  entries,
	}
}

// saveLocal writes the state atomically: write to a temp file, then rename.
func (s *Store) saveLocal() error {
	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming temp state file: %w", err)
	}
	s.log.Debug().Str("path", s.path).Msg("state persisted")
	return nil
}

// Load reads the persisted state from disk. A missing file is not an error;
// it just means there is nothing to restore yet.
func Load(path string) (domain.PersistedState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.PersistedState{}, nil
	}
	if err != nil {
		return domain.PersistedState{}, fmt.Errorf("reading state file: %w", err)
	}
	var st domain.PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.PersistedState{}, fmt.Errorf("parsing state file: %w", err)
	}
	return st, nil
}

// PushToDepot uploads the current local state file to the configured
// remote depot, if one is set.
func (s *Store) PushToDepot(ctx context.Context) error {
	if s.depot == nil {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading state file for depot push: %w", err)
	}
	return s.depot.Upload(ctx, "state.json", data)
}

// RestoreIfMissing downloads the last depot snapshot to the local path when
// no local state file exists yet, e.g. after a fresh deploy onto a new
// controller host. A missing depot object is not an error: it just means
// there is nothing to restore.
func RestoreIfMissing(ctx context.Context, path string, depot *DepotClient) error {
	if depot == nil {
		return nil
	}
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
		return nil
	}

	data, err := depot.Download(ctx, "state.json")
	if err != nil {
		return nil // nothing staged in the depot yet
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DepotClient wraps the AWS S3 SDK to talk to an S3-compatible remote
// depot such as Cloudflare R2.
type DepotClient struct {
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	log        zerolog.Logger
}

// NewDepotClient builds a DepotClient pointed at endpoint (a full HTTPS URL)
// using static credentials.
func NewDepotClient(ctx context.Context, endpoint, accessKey, secretKey, region, bucket string, log zerolog.Logger) (*DepotClient, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("depot credentials incomplete")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint, HostnameImmutable: true, SigningRegion: region}, nil
	})

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading depot aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &DepotClient{
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		log:        log.With().Str("component", "depot").Logger(),
	}, nil
}

// Upload pushes data to key in the depot bucket.
func (d *DepotClient) Upload(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("uploading to depot: %w", err)
	}
	d.log.Info().Str("key", key).Int("bytes", len(data)).Msg("state pushed to depot")
	return nil
}

// Download fetches key from the depot bucket into memory.
func (d *DepotClient) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	buf := manager.NewWriteAtBuffer(nil)
	_, err := d.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading from depot: %w", err)
	}
	d.log.Info().Str("key", key).Int("bytes", len(buf.Bytes())).Msg("state pulled from depot")
	return buf.Bytes(), nil
}
