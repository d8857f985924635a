// Package policyindex is the hybrid FTS+vector policy search index
// (C7): two SQLite-backed tables (documents for full-text, questions for
// the embedding leg) queried by four retrievers and fused by Reciprocal
// Rank Fusion.
package policyindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math"
	"sort"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Index wraps a SQLite database implementing the documents+questions
// hybrid schema.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the policy index database at path
// and runs pending migrations.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("policyindex migrate: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// Document is one indexed policy.
type Document struct {
	Name string
	Path string
	Title string
	Body string
}

// IndexDocument upserts one policy's FTS row.
func (idx *Index) IndexDocument(ctx context.Context, d Document) error {
	_, err := idx.db.ExecContext(ctx,
		`DELETE FROM documents WHERE name = ?`, d.Name)
	if err != nil {
		return err
	}
	_, err = idx.db.ExecContext(ctx,
		`INSERT INTO documents(name, path, title, body) VALUES (?, ?, ?, ?)`,
		d.Name, d.Path, d.Title, d.Body)
	return err
}

// IndexQuestion adds one extracted navigation-guide question for a
// policy, with its embedding vector (caller-supplied; macf does not
// itself run an embedding model — see DESIGN.md).
func (idx *Index) IndexQuestion(ctx context.Context, policyName, question string, embedding []float32) error {
	blob := encodeVector(embedding)
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO questions(policy_name, question, embedding) VALUES (?, ?, ?)`,
		policyName, question, blob)
	return err
}

// RankedResult is one document's ranking from a single retriever.
type RankedResult struct {
	Name string
	Rank int // 1-based; 0 means "not found by this retriever"
}

// ftsSearch ranks documents by FTS5 bm25 relevance against query.
func (idx *Index) ftsSearch(ctx context.Context, query string, limit int) ([]RankedResult, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT name FROM documents WHERE documents MATCH ? ORDER BY bm25(documents) LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RankedResult
	rank := 1
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		out = append(out, RankedResult{Name: name, Rank: rank})
		rank++
	}
	return out, nil
}

// titleSearch ranks documents whose title contains the query verbatim.
func (idx *Index) titleSearch(ctx context.Context, query string, limit int) ([]RankedResult, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT name FROM documents WHERE title LIKE '%' || ? || '%' LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RankedResult
	rank := 1
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		out = append(out, RankedResult{Name: name, Rank: rank})
		rank++
	}
	return out, nil
}

// questionSearch ranks documents by cosine similarity between queryVec
// and each extracted navigation-guide question's embedding.
func (idx *Index) questionSearch(ctx context.Context, queryVec []float32, limit int) ([]RankedResult, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT policy_name, embedding FROM questions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		name  string
		score float64
	}
	var all []scored
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			continue
		}
		all = append(all, scored{name: name, score: cosineSimilarity(queryVec, decodeVector(blob))})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	seen := map[string]bool{}
	var out []RankedResult
	rank := 1
	for _, s := range all {
		if seen[s.name] {
			continue
		}
		seen[s.name] = true
		out = append(out, RankedResult{Name: s.name, Rank: rank})
		rank++
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// discoverySearch ranks documents via the manifest's keyword discovery
// index; callers supply the candidate names already matched by keyword
// so this package need not import manifest (avoids an import cycle).
func discoverySearch(candidates []string) []RankedResult {
	var out []RankedResult
	for i, name := range candidates {
		out = append(out, RankedResult{Name: name, Rank: i + 1})
	}
	return out
}

// rrfK is the Reciprocal Rank Fusion smoothing constant.
const rrfK = 60

// Confidence tiers from the fused RRF score.
const (
	ConfidenceCritical = 0.025
	ConfidenceHigh     = 0.015
	ConfidenceMedium   = 0.008
)

// Confidence classifies a fused score into a tier name, or "" when below
// the MEDIUM cutoff (dropped per §4.8).
func Confidence(score float64) string {
	switch {
	case score >= ConfidenceCritical:
		return "CRITICAL"
	case score >= ConfidenceHigh:
		return "HIGH"
	case score >= ConfidenceMedium:
		return "MEDIUM"
	default:
		return ""
	}
}

// FusedResult is one document's final ranking after RRF across
// retrievers.
type FusedResult struct {
	Name       string
	Score      float64
	Confidence string
}

// fuse combines per-retriever rankings via Σ 1/(k+rank) per document.
func fuse(rankings [][]RankedResult) []FusedResult {
	scores := map[string]float64{}
	for _, ranking := range rankings {
		for _, r := range ranking {
			scores[r.Name] += 1.0 / float64(rrfK+r.Rank)
		}
	}
	var out []FusedResult
	for name, score := range scores {
		if c := Confidence(score); c != "" {
			out = append(out, FusedResult{Name: name, Score: score, Confidence: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// Search runs the four retrievers (FTS, title, question/embedding, and
// keyword-discovery candidates supplied by the caller) and fuses their
// rankings via RRF. Queries under 10 characters are rejected per §4.8's
// query-length guard.
func (idx *Index) Search(ctx context.Context, query string, queryVec []float32, discoveryCandidates []string) ([]FusedResult, error) {
	if len(query) < 10 {
		return nil, nil
	}
	const perRetrieverLimit = 20

	fts, err := idx.ftsSearch(ctx, query, perRetrieverLimit)
	if err != nil {
		fts = nil
	}
	title, err := idx.titleSearch(ctx, query, perRetrieverLimit)
	if err != nil {
		title = nil
	}
	var questions []RankedResult
	if len(queryVec) > 0 {
		questions, _ = idx.questionSearch(ctx, queryVec, perRetrieverLimit)
	}
	discovery := discoverySearch(discoveryCandidates)

	return fuse([][]RankedResult{fts, title, questions, discovery}), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
