// Package neo4j records which fragments answered which questions as a graph:
// (:Tenant)-[:ASKED]->(:Query)-[:CITED {rank}]->(:Fragment)<-[:HAS_FRAGMENT]-(:Document).
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type runner func(ctx context.Context, query string, params map[string]any) error

type CitationGraph struct {
	run runner
}

// Open connects and verifies connectivity. The caller closes the driver.
func Open(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

func NewCitationGraph(driver neo4j.DriverWithContext, database string) *CitationGraph {
	return &CitationGraph{run: func(ctx context.Context, query string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, query, params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(database),
		)
		return err
	}}
}

const recordCitationsCypher = `
MERGE (t:Tenant {id: $tenant_id})
MERGE (q:Query {id: $query_id})
  ON CREATE SET q.question = $question, q.query_type = $query_type, q.has_answer = $has_answer, q.created_at = $created_at
MERGE (t)-[:ASKED]->(q)
WITH q
UNWIND $fragments AS f
MERGE (d:Document {id: f.document_id})
  ON CREATE SET d.filename = f.filename
MERGE (fr:Fragment {tenant_id: $tenant_id, content_hash: f.content_hash})
  ON CREATE SET fr.document_id = f.document_id, fr.chunk_index = f.chunk_index, fr.page_number = f.page_number
MERGE (d)-[:HAS_FRAGMENT]->(fr)
MERGE (q)-[c:CITED]->(fr)
  SET c.rank = f.rank, c.score = f.score
`

// RecordCitations writes the cited sources; rank is the source's 1-based
// position in the answer's source list.
func (g *CitationGraph) RecordCitations(ctx context.Context, entry domain.QueryLog, sources []domain.RankedCandidate) error {
	fragments := make([]map[string]any, 0, len(sources))
	for i, c := range sources {
		if !c.Cited {
			continue
		}
		fragments = append(fragments, map[string]any{
			"document_id":  c.DocumentID,
			"filename":     c.Filename,
			"content_hash": c.ContentHash,
			"chunk_index":  int64(c.ChunkIndex),
			"page_number":  int64(c.PageNumber),
			"rank":         int64(i + 1),
			"score":        c.Score(),
		})
	}
	if len(fragments) == 0 {
		return nil
	}
	params := map[string]any{
		"tenant_id":  entry.TenantID,
		"query_id":   entry.ID,
		"question":   entry.Question,
		"query_type": string(entry.QueryType),
		"has_answer": entry.HasAnswer,
		"created_at": entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"fragments":  fragments,
	}
	if err := g.run(ctx, recordCitationsCypher, params); err != nil {
		return fmt.Errorf("record citations: %w", err)
	}
	return nil
}
