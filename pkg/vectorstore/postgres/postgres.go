// Package postgres implements the vector store on Postgres with the
// pgvector extension.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"batchrag/pkg/document"
	"batchrag/pkg/vectorstore"
)

func init() {
	vectorstore.Register("postgres", New)
}

type config struct {
	ConnString string `mapstructure:"connstring"`
	Table      string `mapstructure:"table"`
}

// Store keeps documents in a single table with a vector column.
type Store struct {
	conn   *pgx.Conn
	table  string
	embed  vectorstore.EmbeddingFunc
	logger *zap.Logger
}

// New connects, ensures the vector extension and the documents table,
// and registers pgvector codecs on the connection.
func New(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
	var cfg config
	if err := mapstructure.Decode(opts.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode postgres store config: %w", err)
	}
	if cfg.ConnString == "" {
		return nil, errors.New("postgres store: connString is required")
	}
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	dims := opts.Dimensions
	if dims <= 0 {
		dims = 1536
	}

	conn, err := pgx.Connect(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("register vector types: %w", err)
	}

	table := pgx.Identifier{cfg.Table}.Sanitize()
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding VECTOR(%d) NOT NULL
	)`, table, dims)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("create table %s: %w", cfg.Table, err)
	}

	opts.Logger.Info("connected to postgres vector store", zap.String("table", cfg.Table), zap.Int("dimensions", dims))
	return &Store{conn: conn, table: table, embed: opts.Embedder, logger: opts.Logger}, nil
}

func (s *Store) Add(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
		s.table)

	batch := &pgx.Batch{}
	for _, d := range docs {
		embedding := d.Embedding
		if embedding == nil {
			var err error
			embedding, err = s.embed(ctx, d.Content)
			if err != nil {
				return fmt.Errorf("embed document %s: %w", d.ID, err)
			}
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		batch.Queue(insert, d.ID, d.Content, meta, pgvector.NewVector(embedding))
	}

	results := s.conn.SendBatch(ctx, batch)
	for range docs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert documents: %w", err)
		}
	}
	return results.Close()
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]document.Scored, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sql := fmt.Sprintf(
		"SELECT id, content, metadata, embedding <=> $1 AS distance FROM %s ORDER BY embedding <=> $1 LIMIT $2",
		s.table)
	rows, err := s.conn.Query(ctx, sql, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var scored []document.Scored
	for rows.Next() {
		var (
			doc      document.Document
			meta     []byte
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", doc.ID, err)
		}
		scored = append(scored, document.Scored{
			Document:   doc,
			Similarity: float32(1 - distance),
		})
	}
	return scored, rows.Err()
}

func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", s.table)
	if err := s.conn.QueryRow(ctx, sql, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check document %s: %w", id, err)
	}
	return exists, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(count), nil
}

// Persist is a no-op: writes are durable on commit.
func (s *Store) Persist() error {
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close(context.Background())
}
