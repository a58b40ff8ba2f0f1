package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Entity types stored in the entities table.
const (
	EntityMachine = "machine"
	EntityKPI     = "kpi"
)

// RelProducesKPI links a machine to a KPI it produces.
const RelProducesKPI = "produces_kpi"

// Entity represents a row in the entities table.
type Entity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	EntityType  string `json:"entity_type"`
	Description string `json:"description,omitempty"`
	Atomic      bool   `json:"atomic"`
	HasAtomic   bool   `json:"has_atomic"`
	Metadata    string `json:"metadata,omitempty"`
}

// Relationship represents a row in the relationships table.
type Relationship struct {
	ID             int64  `json:"id"`
	SourceEntityID int64  `json:"source_entity_id"`
	TargetEntityID int64  `json:"target_entity_id"`
	RelationType   string `json:"relation_type"`
	Metadata       string `json:"metadata,omitempty"`
}

// Link is a relationship addressed by entity names, used for bulk loads.
type Link struct {
	Source       string `json:"source"`
	SourceType   string `json:"source_type"`
	Target       string `json:"target"`
	TargetType   string `json:"target_type"`
	RelationType string `json:"relation_type"`
}

// ReplaceStats reports what ReplaceOntology wrote.
type ReplaceStats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	SkippedLinks  int `json:"skipped_links"`
}

// Store wraps the SQLite database holding the ontology graph and the
// resolution audit log.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Vocabulary queries ---

// ProducingMachines returns the names of machines with at least one
// produces_kpi edge, in insertion order.
func (s *Store) ProducingMachines(ctx context.Context) ([]string, error) {
	return s.names(ctx, `
		SELECT e.name FROM entities e
		WHERE e.entity_type = ?
		AND EXISTS (
			SELECT 1 FROM relationships r
			WHERE r.source_entity_id = e.id AND r.relation_type = ?
		)
		ORDER BY e.id
	`, EntityMachine, RelProducesKPI)
}

// AtomicKPIs returns the names of KPIs that carry an atomic flag, true or
// false, in insertion order. KPIs with no flag are not part of the
// vocabulary.
func (s *Store) AtomicKPIs(ctx context.Context) ([]string, error) {
	return s.names(ctx,
		"SELECT name FROM entities WHERE entity_type = ? AND has_atomic = 1 ORDER BY id",
		EntityKPI)
}

func (s *Store) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// --- Entity operations ---

const entityColumns = "id, name, entity_type, COALESCE(description, ''), atomic, has_atomic, metadata"

// UpsertEntity inserts or updates an entity. Returns the entity ID. Atomic
// implies HasAtomic.
func (s *Store) UpsertEntity(ctx context.Context, e Entity) (int64, error) {
	return upsertEntity(ctx, s.db, e)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertEntity(ctx context.Context, db execer, e Entity) (int64, error) {
	if e.EntityType != EntityMachine && e.EntityType != EntityKPI {
		return 0, fmt.Errorf("entity %q: unknown type %q", e.Name, e.EntityType)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, description, atomic, has_atomic, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, entity_type) DO UPDATE SET
			description = COALESCE(excluded.description, entities.description),
			atomic = excluded.atomic,
			has_atomic = excluded.has_atomic,
			metadata = excluded.metadata
	`, e.Name, e.EntityType, nullString(e.Description), e.Atomic, e.Atomic || e.HasAtomic,
		nullString(e.Metadata)); err != nil {
		return 0, err
	}

	// On conflict LastInsertId does not report the updated row.
	var id int64
	row := db.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE name = ? AND entity_type = ?",
		e.Name, e.EntityType)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetEntity retrieves an entity by name and type.
func (s *Store) GetEntity(ctx context.Context, name, entityType string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE name = ? AND entity_type = ?",
		name, entityType)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", entityType, name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntities returns entities of the given type, or all entities when
// entityType is empty, in insertion order.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]Entity, error) {
	query := "SELECT " + entityColumns + " FROM entities"
	var args []any
	if entityType != "" {
		query += " WHERE entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// DeleteEntity removes an entity and, by cascade, its relationships.
func (s *Store) DeleteEntity(ctx context.Context, name, entityType string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM entities WHERE name = ? AND entity_type = ?", name, entityType)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", entityType, name, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(sc scanner) (Entity, error) {
	var e Entity
	var metadata sql.NullString
	if err := sc.Scan(&e.ID, &e.Name, &e.EntityType, &e.Description, &e.Atomic, &e.HasAtomic, &metadata); err != nil {
		return Entity{}, err
	}
	e.Metadata = metadata.String
	return e, nil
}

// --- Relationship operations ---

// InsertRelationship creates a relationship between two entities. Inserting
// an existing edge is a no-op and returns its ID.
func (s *Store) InsertRelationship(ctx context.Context, r Relationship) (int64, error) {
	return insertRelationship(ctx, s.db, r)
}

func insertRelationship(ctx context.Context, db execer, r Relationship) (int64, error) {
	if _, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO relationships (source_entity_id, target_entity_id, relation_type, metadata)
		VALUES (?, ?, ?, ?)
	`, r.SourceEntityID, r.TargetEntityID, r.RelationType, nullString(r.Metadata)); err != nil {
		return 0, err
	}
	var id int64
	err := db.QueryRowContext(ctx, `
		SELECT id FROM relationships
		WHERE source_entity_id = ? AND target_entity_id = ? AND relation_type = ?
	`, r.SourceEntityID, r.TargetEntityID, r.RelationType).Scan(&id)
	return id, err
}

// AllRelationships returns every relationship in the database.
func (s *Store) AllRelationships(ctx context.Context) ([]Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_entity_id, target_entity_id, relation_type, metadata
		FROM relationships ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		var metadata sql.NullString
		if err := rows.Scan(&r.ID, &r.SourceEntityID, &r.TargetEntityID,
			&r.RelationType, &metadata); err != nil {
			return nil, err
		}
		r.Metadata = metadata.String
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// --- Bulk ontology operations ---

// ClearOntology deletes every entity and relationship.
func (s *Store) ClearOntology(ctx context.Context) error {
	return s.inTx(ctx, clearOntology(ctx))
}

func clearOntology(ctx context.Context) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM relationships"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM entities")
		return err
	}
}

// ReplaceOntology swaps the stored graph for entities and links inside one
// transaction. Links whose endpoints are not among entities are skipped and
// counted.
func (s *Store) ReplaceOntology(ctx context.Context, entities []Entity, links []Link) (ReplaceStats, error) {
	var stats ReplaceStats
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stats = ReplaceStats{}
		if err := clearOntology(ctx)(tx); err != nil {
			return fmt.Errorf("clearing ontology: %w", err)
		}

		ids := make(map[string]int64, len(entities))
		for _, e := range entities {
			id, err := upsertEntity(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("inserting %s %q: %w", e.EntityType, e.Name, err)
			}
			key := e.EntityType + "\x00" + e.Name
			if _, dup := ids[key]; !dup {
				stats.Entities++
			}
			ids[key] = id
		}

		for _, l := range links {
			src, ok1 := ids[l.SourceType+"\x00"+l.Source]
			dst, ok2 := ids[l.TargetType+"\x00"+l.Target]
			if !ok1 || !ok2 {
				stats.SkippedLinks++
				continue
			}
			if _, err := insertRelationship(ctx, tx, Relationship{
				SourceEntityID: src,
				TargetEntityID: dst,
				RelationType:   l.RelationType,
			}); err != nil {
				return fmt.Errorf("linking %q -> %q: %w", l.Source, l.Target, err)
			}
			stats.Relationships++
		}
		return nil
	})
	if err != nil {
		return ReplaceStats{}, err
	}
	return stats, nil
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Machines      int `json:"machines"`
	KPIs          int `json:"kpis"`
	AtomicKPIs    int `json:"atomic_kpis"`
	Relationships int `json:"relationships"`
	Queries       int `json:"queries"`
}

// DBStats returns counts of entities, relationships and logged queries.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM entities WHERE entity_type = 'machine'", &stats.Machines},
		{"SELECT COUNT(*) FROM entities WHERE entity_type = 'kpi'", &stats.KPIs},
		{"SELECT COUNT(*) FROM entities WHERE entity_type = 'kpi' AND atomic = 1", &stats.AtomicKPIs},
		{"SELECT COUNT(*) FROM relationships", &stats.Relationships},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
