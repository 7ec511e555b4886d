// Package storage persists check state, check history, and the cached team
// list, either on the local filesystem or in a Cloud Storage bucket.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"tempo-notifier/pkg/approval"
)

const (
	stateKey    = "tempo-state.json"
	teamsKey    = "tempo-teams.json"
	checkPrefix = "check-"
)

// Store handles persistence. With a localPath it reads and writes plain
// files; otherwise it goes to the configured bucket.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a storage handler. client may be nil when localPath is set.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// teamsCache wraps the team list with the fetch time so staleness can be
// judged on load.
type teamsCache struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Teams     []approval.Team `json:"teams"`
}

// SaveState persists the carried-over check state.
func (s *Store) SaveState(ctx context.Context, state *approval.State) error {
	return s.save(ctx, stateKey, state)
}

// LoadState loads the carried-over check state. A missing state file is
// not an error; it returns an empty state.
func (s *Store) LoadState(ctx context.Context) (*approval.State, error) {
	var state approval.State
	if err := s.load(ctx, stateKey, &state); err != nil {
		if IsNotFound(err) {
			return &approval.State{}, nil
		}
		return nil, err
	}
	return &state, nil
}

// SaveCheck appends a check result to the history under a timestamped key.
func (s *Store) SaveCheck(ctx context.Context, result *approval.Result) error {
	key := fmt.Sprintf("%s%s.json", checkPrefix, time.Now().UTC().Format("20060102-150405"))
	return s.save(ctx, key, result)
}

// History returns up to limit most recent check results, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]*approval.Result, error) {
	keys, err := s.listKeys(ctx, checkPrefix)
	if err != nil {
		return nil, err
	}

	// Timestamped keys sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	results := make([]*approval.Result, 0, len(keys))
	for _, key := range keys {
		var r approval.Result
		if err := s.load(ctx, key, &r); err != nil {
			s.logger.Warn("Failed to load check record", "key", key, "error", err)
			continue
		}
		results = append(results, &r)
	}
	return results, nil
}

// SaveTeams caches the discovered team list.
func (s *Store) SaveTeams(ctx context.Context, list []approval.Team) error {
	return s.save(ctx, teamsKey, &teamsCache{FetchedAt: time.Now().UTC(), Teams: list})
}

// LoadTeams returns the cached team list if it is younger than maxAge.
// A stale or missing cache returns (nil, false, nil) so the caller knows
// to re-discover.
func (s *Store) LoadTeams(ctx context.Context, maxAge time.Duration) ([]approval.Team, bool, error) {
	var cache teamsCache
	if err := s.load(ctx, teamsKey, &cache); err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if time.Since(cache.FetchedAt) > maxAge {
		s.logger.Info("Teams cache is stale", "fetched_at", cache.FetchedAt)
		return nil, false, nil
	}
	return cache.Teams, true, nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Info("Saved to local storage", "path", filePath)
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Saved to bucket", "key", key, "bucket", s.bucket)
	return nil
}

func (s *Store) load(ctx context.Context, key string, v any) error {
	var data []byte

	if s.localPath != "" {
		var err error
		filePath := filepath.Join(s.localPath, key)
		data, err = os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.New("storage: object doesn't exist")
			}
			return fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		var readData []byte
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				readData, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
			}),
		)
		if err != nil {
			if strings.Contains(err.Error(), "object doesn't exist") {
				return errors.New("storage: object doesn't exist")
			}
			return fmt.Errorf("load after retries: %w", err)
		}
		data = readData
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			keys = append(keys, entry.Name())
		}
		return keys, nil
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// IsNotFound checks if an error indicates a missing object.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "storage: object doesn't exist")
}
