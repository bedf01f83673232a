package resolver

import (
	"context"
	"database/sql"

	"github.com/onboardkit/semos/pkg/contracts"
)

const pgResolverSchema = `
CREATE TABLE IF NOT EXISTS client_group_aliases (
	client_group_id   TEXT NOT NULL,
	client_group_name TEXT NOT NULL,
	alias             TEXT NOT NULL,
	source            TEXT NOT NULL,
	PRIMARY KEY (client_group_id, alias)
);

CREATE TABLE IF NOT EXISTS entity_tags (
	entity_id       TEXT NOT NULL,
	entity_name     TEXT NOT NULL,
	client_group_id TEXT NOT NULL,
	tag             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entity_tags_group ON entity_tags (client_group_id);
CREATE INDEX IF NOT EXISTS idx_entity_tags_trgm ON entity_tags USING gin (tag gin_trgm_ops);
`

// PostgresStore implements ClientGroupStore and EntityStore over
// database/sql + lib/pq, trigram fuzzy matching via the pg_trgm
// extension's similarity() function, following the same hand-rolled
// SQL idiom as the registry's PostgresStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the resolver's backing tables and the pg_trgm extension
// fuzzy matching depends on.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, pgResolverSchema)
	return err
}

// FindGroupsByAlias returns client groups whose alias matches text
// exactly (case-insensitive) or, failing that, by trigram similarity
// above 0.3 — the same MinInclude threshold entity search applies.
func (s *PostgresStore) FindGroupsByAlias(ctx context.Context, text string) ([]contracts.ClientGroupRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT client_group_id, client_group_name FROM client_group_aliases
		WHERE lower(alias) = lower($1)
	`, text)
	if err != nil {
		return nil, err
	}
	groups, err := scanGroupRefs(rows)
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		return groups, nil
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT DISTINCT client_group_id, client_group_name FROM client_group_aliases
		WHERE similarity(alias, $1) > 0.3
		ORDER BY similarity(alias, $1) DESC
		LIMIT 5
	`, text)
	if err != nil {
		return nil, err
	}
	return scanGroupRefs(rows)
}

func scanGroupRefs(rows *sql.Rows) ([]contracts.ClientGroupRef, error) {
	defer func() { _ = rows.Close() }()
	var groups []contracts.ClientGroupRef
	for rows.Next() {
		var g contracts.ClientGroupRef
		if err := rows.Scan(&g.ClientGroupID, &g.ClientGroupName); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SaveAlias records a newly confirmed (or seeded) alias.
func (s *PostgresStore) SaveAlias(ctx context.Context, groupID, alias string, source contracts.AliasSource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_group_aliases (client_group_id, client_group_name, alias, source)
		VALUES ($1, $1, $2, $3)
		ON CONFLICT (client_group_id, alias) DO UPDATE SET source = EXCLUDED.source
	`, groupID, alias, string(source))
	return err
}

// FindByExactTag looks up entities carrying an exact (case-insensitive)
// tag match within the client group's scope.
func (s *PostgresStore) FindByExactTag(ctx context.Context, clientGroupID, text string) ([]contracts.EntityMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_name, tag FROM entity_tags
		WHERE client_group_id = $1 AND lower(tag) = lower($2)
	`, clientGroupID, text)
	if err != nil {
		return nil, err
	}
	return scanEntityMatches(rows)
}

// FindByFuzzyTag ranks entities by trigram similarity of their stored
// tags against text, scoped to the client group.
func (s *PostgresStore) FindByFuzzyTag(ctx context.Context, clientGroupID, text string) ([]contracts.EntityMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_name, tag, similarity(tag, $2) AS score FROM entity_tags
		WHERE client_group_id = $1 AND similarity(tag, $2) > 0.3
		ORDER BY score DESC
		LIMIT 10
	`, clientGroupID, text)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var matches []contracts.EntityMatch
	for rows.Next() {
		var m contracts.EntityMatch
		if err := rows.Scan(&m.EntityID, &m.EntityName, &m.MatchedTag, &m.Confidence); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanEntityMatches(rows *sql.Rows) ([]contracts.EntityMatch, error) {
	defer func() { _ = rows.Close() }()
	var matches []contracts.EntityMatch
	for rows.Next() {
		var m contracts.EntityMatch
		if err := rows.Scan(&m.EntityID, &m.EntityName, &m.MatchedTag); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
