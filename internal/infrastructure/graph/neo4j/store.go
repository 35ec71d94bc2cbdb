package neo4j

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/resilience"
)

const (
	maxTraversalDepth = 3
	defaultNameProp   = "name"
)

const resolveVerticesCypher = `
UNWIND $keywords AS kw
MATCH (n)
WHERE n[$prop] IS NOT NULL AND toLower(toString(n[$prop])) CONTAINS toLower(kw)
RETURN elementId(n) AS id,
       CASE WHEN toLower(toString(n[$prop])) = toLower(kw) THEN 0 ELSE 1 END AS rank
ORDER BY rank ASC
LIMIT $limit`

const seedVerticesCypher = `
MATCH (n)
WHERE elementId(n) IN $ids
RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props`

// %d is the clamped traversal depth; Cypher does not accept parameters in variable-length bounds.
const neighborhoodCypher = `
MATCH (seed)
WHERE elementId(seed) IN $ids
MATCH p = (seed)-[*1..%d]-(m)
WHERE NOT elementId(m) IN $ids
RETURN elementId(m) AS id,
       length(p) AS depth,
       [n IN nodes(p) | coalesce(toString(n[$prop]), elementId(n))] AS names,
       [i IN range(0, length(p) - 1) |
          CASE WHEN startNode(relationships(p)[i]) = nodes(p)[i]
               THEN '-[' + type(relationships(p)[i]) + ']->'
               ELSE '<-[' + type(relationships(p)[i]) + ']-' END] AS rels
ORDER BY depth ASC
LIMIT $limit`

type queryRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r driverRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Store resolves keywords to vertices and reads their neighborhood from Neo4j.
type Store struct {
	runner   queryRunner
	driver   neo4j.DriverWithContext
	nameProp string
	executor *resilience.Executor
}

func New(ctx context.Context, uri, username, password, database, nameProp string, executor *resilience.Executor) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	store := newStore(driverRunner{driver: driver, database: database}, nameProp, executor)
	store.driver = driver
	return store, nil
}

func newStore(runner queryRunner, nameProp string, executor *resilience.Executor) *Store {
	if strings.TrimSpace(nameProp) == "" {
		nameProp = defaultNameProp
	}
	return &Store{
		runner:   runner,
		nameProp: nameProp,
		executor: executor,
	}
}

func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Store) ResolveVertexIDs(ctx context.Context, keywords []string, limit int) ([]string, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	records, err := s.run(ctx, "neo4j.resolve_vertices", resolveVerticesCypher, map[string]any{
		"keywords": keywords,
		"prop":     s.nameProp,
		"limit":    int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve vertices: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, record := range records {
		id := recordString(record, "id")
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// QuerySubgraph returns the seed vertices at depth 0 followed by paths to their neighbors,
// nearest first. Depth is clamped to 1..3.
func (s *Store) QuerySubgraph(ctx context.Context, vertexIDs []string, maxDepth, limit int) ([]domain.ContextItem, error) {
	if len(vertexIDs) == 0 {
		return nil, nil
	}
	maxDepth = max(1, min(maxDepth, maxTraversalDepth))
	if limit <= 0 {
		limit = 30
	}

	seeds, err := s.run(ctx, "neo4j.seed_vertices", seedVerticesCypher, map[string]any{"ids": vertexIDs})
	if err != nil {
		return nil, fmt.Errorf("query seed vertices: %w", err)
	}
	paths, err := s.run(ctx, "neo4j.neighborhood", fmt.Sprintf(neighborhoodCypher, maxDepth), map[string]any{
		"ids":   vertexIDs,
		"prop":  s.nameProp,
		"limit": int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("query neighborhood: %w", err)
	}

	out := make([]domain.ContextItem, 0, len(seeds)+len(paths))
	for _, record := range seeds {
		text := describeVertex(record, s.nameProp)
		if text == "" {
			continue
		}
		out = append(out, domain.ContextItem{
			ID:     recordString(record, "id"),
			Source: domain.SourceGraph,
			Text:   text,
			Score:  1,
			Depth:  0,
		})
	}
	for _, record := range paths {
		depth := int(recordInt(record, "depth"))
		out = append(out, domain.ContextItem{
			ID:     recordString(record, "id"),
			Source: domain.SourceGraph,
			Text:   describePath(recordStrings(record, "names"), recordStrings(record, "rels")),
			Score:  1 / float64(1+depth),
			Depth:  depth,
		})
	}
	return out, nil
}

func (s *Store) run(ctx context.Context, operation, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return resilience.Call(ctx, s.executor, operation, func(ctx context.Context) ([]*neo4j.Record, error) {
		return s.runner.Run(ctx, cypher, params)
	}, classifyNeo4jError)
}

func classifyNeo4jError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	if neo4j.IsRetryable(err) {
		return resilience.Transient
	}
	return resilience.Permanent
}

// describeVertex renders "Sarah (Person) age: 30, occupation: attorney".
func describeVertex(record *neo4j.Record, nameProp string) string {
	raw, _ := record.Get("props")
	props, _ := raw.(map[string]any)
	name := fmt.Sprint(props[nameProp])
	if props[nameProp] == nil {
		name = recordString(record, "id")
	}

	var b strings.Builder
	b.WriteString(name)
	if labels := recordStrings(record, "labels"); len(labels) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(labels, ", "))
		b.WriteString(")")
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		if k != nameProp {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, props[k])
	}
	return b.String()
}

// describePath renders "Sarah -[roommate]-> Bob <-[owns]- Car".
func describePath(names, rels []string) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(" ")
			if i-1 < len(rels) {
				b.WriteString(rels[i-1])
				b.WriteString(" ")
			}
		}
		b.WriteString(name)
	}
	return b.String()
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func recordInt(record *neo4j.Record, key string) int64 {
	v, _ := record.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func recordStrings(record *neo4j.Record, key string) []string {
	v, _ := record.Get(key)
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
