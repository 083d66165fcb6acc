// Package postgres provides a PostgreSQL implementation of sysdb.SysDB.
// It uses pgx/v5 for connection pooling and JSONB for metadata columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/sysdb"
)

// Store is a PostgreSQL-backed system-of-record.
type Store struct {
	pool   *pgxpool.Pool
	codec  codec.Codec
	logger *slog.Logger
}

// Ensure Store implements sysdb.SysDB at compile time.
var _ sysdb.SysDB = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if logger == nil {
		logger = discard
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, codec: codec.Default, logger: logger}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) GetSegments(ctx context.Context, filter sysdb.SegmentFilter) ([]model.Segment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ID != nil {
		add("id = $%d::uuid", filter.ID.String())
	}
	if filter.Collection != nil {
		add("collection_id = $%d::uuid", filter.Collection.String())
	}
	if filter.Scope != nil {
		add("scope = $%d", string(*filter.Scope))
	}
	if filter.Type != nil {
		add("type = $%d", string(*filter.Type))
	}

	query := "SELECT id::text, type, scope, collection_id::text, metadata FROM segments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var out []model.Segment
	for rows.Next() {
		var (
			id, typ, scope, coll string
			md                   []byte
		)
		if err := rows.Scan(&id, &typ, &scope, &coll, &md); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		seg, err := s.segmentFromRow(id, typ, scope, coll, md)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments: %w", err)
	}
	return out, nil
}

func (s *Store) CreateSegment(ctx context.Context, seg model.Segment) error {
	md, err := codec.MarshalMetadata(s.codec, seg.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling segment metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO segments (id, type, scope, collection_id, metadata)
		VALUES ($1::uuid, $2, $3, $4::uuid, $5::jsonb)
	`, seg.ID.String(), string(seg.Type), string(seg.Scope), seg.Collection.String(), nullJSON(md))
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("segment %s: %w", seg.ID, sysdb.ErrConflict)
		}
		return fmt.Errorf("inserting segment: %w", err)
	}
	return nil
}

func (s *Store) DeleteSegment(ctx context.Context, id model.UniqueID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM segments WHERE id = $1::uuid", id.String())
	if err != nil {
		return fmt.Errorf("deleting segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("segment %s: %w", id, sysdb.ErrNotFound)
	}
	return nil
}

func (s *Store) GetCollections(ctx context.Context, filter sysdb.CollectionFilter) ([]model.Collection, error) {
	var (
		where []string
		args  []any
	)
	if filter.ID != nil {
		args = append(args, filter.ID.String())
		where = append(where, fmt.Sprintf("id = $%d::uuid", len(args)))
	}
	if filter.Name != nil {
		args = append(args, *filter.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}

	query := "SELECT id::text, name, dimension, metadata, tenant, database FROM collections"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer rows.Close()

	var out []model.Collection
	for rows.Next() {
		var (
			c   model.Collection
			id  string
			dim *int32
			md  []byte
		)
		if err := rows.Scan(&id, &c.Name, &dim, &md, &c.Tenant, &c.Database); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		if c.ID, err = model.ParseUniqueID(id); err != nil {
			return nil, fmt.Errorf("parsing collection id: %w", err)
		}
		if c.Metadata, err = codec.UnmarshalMetadata(s.codec, md); err != nil {
			return nil, fmt.Errorf("unmarshaling collection metadata: %w", err)
		}
		c.Dimension = dim
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %w", err)
	}
	return out, nil
}

func (s *Store) CreateCollection(ctx context.Context, c model.Collection) error {
	md, err := codec.MarshalMetadata(s.codec, c.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling collection metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO collections (id, name, dimension, metadata, tenant, database)
		VALUES ($1::uuid, $2, $3, $4::jsonb, $5, $6)
	`, c.ID.String(), c.Name, c.Dimension, nullJSON(md), c.Tenant, c.Database)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("collection %s: %w", c.ID, sysdb.ErrConflict)
		}
		return fmt.Errorf("inserting collection: %w", err)
	}
	return nil
}

func (s *Store) DeleteCollection(ctx context.Context, id model.UniqueID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM collections WHERE id = $1::uuid", id.String())
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection %s: %w", id, sysdb.ErrNotFound)
	}
	return nil
}

// GetSegment returns a single descriptor by id.
func (s *Store) GetSegment(ctx context.Context, id model.UniqueID) (model.Segment, error) {
	var (
		sid, typ, scope, coll string
		md                    []byte
	)
	err := s.pool.QueryRow(ctx,
		"SELECT id::text, type, scope, collection_id::text, metadata FROM segments WHERE id = $1::uuid",
		id.String(),
	).Scan(&sid, &typ, &scope, &coll, &md)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Segment{}, fmt.Errorf("segment %s: %w", id, sysdb.ErrNotFound)
	}
	if err != nil {
		return model.Segment{}, fmt.Errorf("querying segment: %w", err)
	}
	return s.segmentFromRow(sid, typ, scope, coll, md)
}

func (s *Store) segmentFromRow(id, typ, scope, coll string, md []byte) (model.Segment, error) {
	seg := model.Segment{Type: model.SegmentType(typ), Scope: model.SegmentScope(scope)}
	var err error
	if seg.ID, err = model.ParseUniqueID(id); err != nil {
		return seg, fmt.Errorf("parsing segment id: %w", err)
	}
	if seg.Collection, err = model.ParseUniqueID(coll); err != nil {
		return seg, fmt.Errorf("parsing collection id: %w", err)
	}
	if seg.Metadata, err = codec.UnmarshalMetadata(s.codec, md); err != nil {
		return seg, fmt.Errorf("unmarshaling segment metadata: %w", err)
	}
	return seg, nil
}

// nullJSON maps empty JSON to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
