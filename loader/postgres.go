package loader

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fundscope/verdict"

	_ "github.com/lib/pq"
)

// PostgresSource reads persisted rule definitions for startup loading.
// The engine itself holds no disk-resident state; the rules table is
// written by the administration service and only read here.
//
// Expected table shape:
//
//	CREATE TABLE rules (
//	    id        text NOT NULL,
//	    domain    text NOT NULL,
//	    priority  integer NOT NULL DEFAULT 0,
//	    condition text NOT NULL,
//	    actions   jsonb NOT NULL DEFAULT '[]',
//	    enabled   boolean NOT NULL DEFAULT true,
//	    PRIMARY KEY (domain, id)
//	);
//
// Domain schemas are not persisted; set them on the registry before
// calling LoadSource.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource wraps an existing database handle.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPostgres connects with the lib/pq driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

// Close releases the database handle.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// Rules reads every rule definition, ordered by domain and id so
// registration order is deterministic.
func (s *PostgresSource) Rules(ctx context.Context) ([]*verdict.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, priority, condition, actions, enabled
		FROM rules
		ORDER BY domain ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []*verdict.Rule
	for rows.Next() {
		var (
			rule       verdict.Rule
			rawActions []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Domain, &rule.Priority, &rule.Condition, &rawActions, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		var pas []packAction
		if err := json.Unmarshal(rawActions, &pas); err != nil {
			return nil, fmt.Errorf("rule %s/%s: decoding actions: %w", rule.Domain, rule.ID, err)
		}
		rule.Actions, err = convertActions(pas)
		if err != nil {
			return nil, fmt.Errorf("rule %s/%s: %w", rule.Domain, rule.ID, err)
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return rules, nil
}

// RuleSource yields externally stored rule definitions.
type RuleSource interface {
	Rules(ctx context.Context) ([]*verdict.Rule, error)
}

// LoadSource registers every rule the source yields. Domain schemas
// must already be set on the registry.
func (l *Loader) LoadSource(ctx context.Context, src RuleSource) error {
	rules, err := src.Rules(ctx)
	if err != nil {
		return err
	}
	if err := l.registry.Register(rules...); err != nil {
		return err
	}
	l.logger.Info("loaded rules from source", "rules", len(rules))
	return nil
}
