package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// productSearchSQL orders by cosine distance; similarity = 1 - distance.
// The embedding column is vector(768); see db/migrations.
const productSearchSQL = `
SELECT id::text,
       name || ' (' || category || ', ' || color || ', ' || price || '): ' || description AS content,
       1 - (embedding <=> $1) AS similarity
FROM products
ORDER BY embedding <=> $1
LIMIT $2`

// ProductIndex is the pgvector-backed Index implementation for the product
// catalog. Safe for concurrent use; the pool handles connection management.
type ProductIndex struct {
	pool *pgxpool.Pool
}

// NewProductIndex creates a ProductIndex on the given pool.
func NewProductIndex(pool *pgxpool.Pool) *ProductIndex {
	return &ProductIndex{pool: pool}
}

// Query implements Index using cosine distance over the products table.
func (p *ProductIndex) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := p.pool.Query(ctx, productSearchSQL, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("product vector search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning product match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading product matches: %w", err)
	}
	return matches, nil
}
