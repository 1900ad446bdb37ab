package storage

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding catalog embeddings and the audit log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "yanit.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Embeddings ---

// GetEmbedding returns the cached vector for a rich-text hash, if present.
func (s *Store) GetEmbedding(hash string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT vec FROM embeddings WHERE hash = ?", hash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeFloat32s(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decoding embedding %s: %w", hash, err)
	}
	return vec, true, nil
}

// PutEmbedding stores a vector keyed by rich-text hash, replacing any previous value.
func (s *Store) PutEmbedding(hash string, vec []float32) error {
	_, err := s.db.Exec(`
		INSERT INTO embeddings (hash, dim, vec, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET dim = excluded.dim, vec = excluded.vec`,
		hash, len(vec), encodeFloat32s(vec), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// PruneEmbeddings deletes cached vectors whose hash is not in keep.
// Called after a catalog reload so stale products do not accumulate.
func (s *Store) PruneEmbeddings(keep []string) (int64, error) {
	if len(keep) == 0 {
		res, err := s.db.Exec("DELETE FROM embeddings")
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	placeholders := strings.Repeat(",?", len(keep)-1)
	args := make([]interface{}, len(keep))
	for i, h := range keep {
		args[i] = h
	}
	res, err := s.db.Exec("DELETE FROM embeddings WHERE hash NOT IN (?"+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func encodeFloat32s(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32s(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// --- Audit records ---

func (s *Store) SaveAuditRecord(r AuditRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_records (id, tenant, conversation_id, created_at, norm_text, tier, intent, confidence, product_ids, prompt_tokens, completion_tokens, latency_ms, cost, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Tenant, r.ConversationID, r.CreatedAt.UTC().Format(time.RFC3339),
		r.NormText, r.Tier, r.Intent, r.Confidence, r.ProductIDs,
		r.PromptTokens, r.CompletionTokens, r.LatencyMS, r.Cost, r.Reason,
	)
	return err
}

func (s *Store) GetAuditRecord(id string) (AuditRecord, error) {
	var r AuditRecord
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, tenant, conversation_id, created_at, norm_text, tier, intent, confidence, product_ids, prompt_tokens, completion_tokens, latency_ms, cost, reason
		FROM audit_records WHERE id = ?`, id,
	).Scan(&r.ID, &r.Tenant, &r.ConversationID, &createdAt, &r.NormText, &r.Tier, &r.Intent,
		&r.Confidence, &r.ProductIDs, &r.PromptTokens, &r.CompletionTokens, &r.LatencyMS, &r.Cost, &r.Reason)
	if err == sql.ErrNoRows {
		return AuditRecord{}, ErrNotFound
	}
	if err != nil {
		return AuditRecord{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

func (s *Store) RecentAuditRecords(tenant string, limit int) ([]AuditRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, tenant, conversation_id, created_at, norm_text, tier, intent, confidence, product_ids, prompt_tokens, completion_tokens, latency_ms, cost, reason
		FROM audit_records WHERE tenant = ? ORDER BY created_at DESC LIMIT ?`, tenant, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Tenant, &r.ConversationID, &createdAt, &r.NormText, &r.Tier, &r.Intent,
			&r.Confidence, &r.ProductIDs, &r.PromptTokens, &r.CompletionTokens, &r.LatencyMS, &r.Cost, &r.Reason); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}

// UsageForDay aggregates audit records for one tenant on one UTC day (YYYY-MM-DD).
func (s *Store) UsageForDay(tenant, day string) (DailyUsage, error) {
	u := DailyUsage{Tenant: tenant, Day: day}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN tier = 'rule' OR tier = 'retrieval' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN tier = 'model' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(prompt_tokens + completion_tokens), 0),
		       COALESCE(SUM(cost), 0),
		       COALESCE(AVG(latency_ms), 0)
		FROM audit_records
		WHERE tenant = ? AND created_at >= ? AND created_at < ?`,
		tenant, day+"T00:00:00Z", nextDay(day),
	).Scan(&u.Requests, &u.Tier2, &u.Tier3, &u.TotalTokens, &u.TotalCost, &u.AvgLatencyMS)
	if err != nil {
		return DailyUsage{}, err
	}
	return u, nil
}

func nextDay(day string) string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return day + "T23:59:59Z"
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02") + "T00:00:00Z"
}
