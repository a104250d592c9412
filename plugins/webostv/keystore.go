package webostv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/joshp123/gohass/internal/blob"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// keyTable matches the single-table layout legacy key files were written in.
const keyTable = "unnamed"

// KeyStore is a SQLite key/value file mapping TV hosts to client keys. Keys
// are optionally mirrored to blob storage so a fresh host can recover them.
type KeyStore struct {
	db     *sqlx.DB
	mirror blob.Store
	logger *zap.Logger
}

type keyRow struct {
	Host string `db:"key"`
	Key  string `db:"value"`
}

func OpenKeyStore(path string, mirror blob.Store, logger *zap.Logger) (*KeyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open key store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + keyTable + ` (key TEXT PRIMARY KEY, value BLOB)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init key store %s: %w", path, err)
	}
	return &KeyStore{db: db, mirror: mirror, logger: logger}, nil
}

func mirrorName(host string) string {
	return "webostv/client-keys/" + host
}

// Get returns the key for host, falling back to the mirror and caching what
// it finds there. Non-text values, such as pickled entries from older key
// files, count as missing.
func (s *KeyStore) Get(ctx context.Context, host string) (string, bool, error) {
	var row struct {
		Value string `db:"value"`
		Kind  string `db:"kind"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT CAST(value AS TEXT) AS value, typeof(value) AS kind FROM `+keyTable+` WHERE key = ?`, host)
	switch {
	case err == nil && row.Kind == "text":
		return row.Value, true, nil
	case err == nil:
		s.logger.Warn("ignoring stored client key that is not text", zap.String("host", host), zap.String("type", row.Kind))
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("read key for %s: %w", host, err)
	}
	if s.mirror == nil {
		return "", false, nil
	}

	data, err := s.mirror.Load(ctx, mirrorName(host))
	if errors.Is(err, blob.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Warn("client key mirror unavailable", zap.String("host", host), zap.Error(err))
		return "", false, nil
	}
	key := string(data)
	if err := s.put(ctx, host, key); err != nil {
		return "", false, err
	}
	return key, true, nil
}

// Put stores the key for host and mirrors it.
func (s *KeyStore) Put(ctx context.Context, host, key string) error {
	if err := s.put(ctx, host, key); err != nil {
		return err
	}
	if s.mirror == nil {
		return nil
	}
	if err := s.mirror.Save(ctx, mirrorName(host), []byte(key)); err != nil {
		return fmt.Errorf("mirror key for %s: %w", host, err)
	}
	return nil
}

func (s *KeyStore) put(ctx context.Context, host, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+keyTable+` (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		host, key)
	if err != nil {
		return fmt.Errorf("write key for %s: %w", host, err)
	}
	return nil
}

// All returns every stored host with a text key.
func (s *KeyStore) All(ctx context.Context) (map[string]string, error) {
	var rows []keyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM `+keyTable+` WHERE typeof(value) = 'text' ORDER BY key`); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Host] = row.Key
	}
	return out, nil
}

func (s *KeyStore) Close() error {
	return s.db.Close()
}

// ConvertClientKeys migrates a legacy JSON key file at path into a SQLite
// key store at the same path. It reports whether a migration happened. A
// missing file, or one that is not a non-empty JSON object, is left alone.
func ConvertClientKeys(ctx context.Context, path string, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read key file: %w", err)
	}

	var legacy map[string]any
	if err := json.Unmarshal(data, &legacy); err != nil || len(legacy) == 0 {
		return false, nil
	}

	logger.Warn("LG webOS TV client-key file is being migrated to SQLite", zap.String("path", path))
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("remove legacy key file: %w", err)
	}

	store, err := OpenKeyStore(path, nil, logger)
	if err != nil {
		return false, err
	}
	defer store.Close()

	hosts := make([]string, 0, len(legacy))
	for host := range legacy {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		key, ok := legacy[host].(string)
		if !ok {
			logger.Warn("skipping non-string client key", zap.String("host", host))
			continue
		}
		if err := store.put(ctx, host, key); err != nil {
			return false, err
		}
	}
	return true, nil
}
