package memory

import (
	"fmt"

	"github.com/kylegalloway/taskloop/internal/config"
)

// SchemaSQL returns the DDL an operator applies to a pgvector-enabled
// Postgres (e.g. the Supabase SQL editor) before using the supabase backend.
func SchemaSQL(cfg config.SupabaseConfig, dims int) string {
	t := cfg.Table
	return fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    id BIGSERIAL PRIMARY KEY,
    content TEXT,
    metadata JSONB,
    embedding VECTOR(%[3]d),
    created_at TIMESTAMP WITH TIME ZONE DEFAULT timezone('utc'::text, now()) NOT NULL
);

CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
    ON %[1]s
    USING ivfflat (embedding vector_cosine_ops)
    WITH (lists = 100);

CREATE OR REPLACE FUNCTION %[2]s(
    query_embedding VECTOR(%[3]d),
    match_count INT DEFAULT 5,
    filter JSONB DEFAULT '{}'
)
RETURNS TABLE(id BIGINT, content TEXT, metadata JSONB, similarity FLOAT)
LANGUAGE plpgsql
AS $$
BEGIN
    RETURN QUERY
    SELECT
        %[1]s.id,
        %[1]s.content,
        %[1]s.metadata,
        1 - (%[1]s.embedding <=> query_embedding) AS similarity
    FROM %[1]s
    WHERE %[1]s.metadata @> filter
    ORDER BY %[1]s.embedding <=> query_embedding
    LIMIT match_count;
END;
$$;
`, t, cfg.MatchFunction, dims)
}
