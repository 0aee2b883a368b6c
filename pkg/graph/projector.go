package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// ContactLoader fetches the canonical row to mirror.
type ContactLoader interface {
	Get(ctx context.Context, id int64) (*models.Contact, error)
}

// CypherExecutor runs write transactions; satisfied by Client.
type CypherExecutor interface {
	ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error)
}

// statement is one parameterized Cypher write.
type statement struct {
	cypher string
	params map[string]any
}

// Projector mirrors merge survivors into the graph. The store already
// committed by the time it runs, so projection failures degrade to
// warnings and never fail a run.
type Projector struct {
	logger   ectologger.Logger
	client   CypherExecutor
	contacts ContactLoader
}

// NewProjector creates a projector over the given graph client.
func NewProjector(logger ectologger.Logger, client CypherExecutor, contacts ContactLoader) *Projector {
	return &Projector{
		logger:   logger,
		client:   client,
		contacts: contacts,
	}
}

// MergeCommitted projects one settled merge: the survivor is upserted
// with its current field values and the merged-away nodes are
// tombstoned so downstream consumers can repoint their edges.
func (p *Projector) MergeCommitted(ctx context.Context, runID string, _ models.Strategy, primaryID int64, mergedIDs []int64) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.MergeCommitted")
	defer span.End()

	if err := p.project(ctx, primaryID, mergedIDs); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":     runID,
			"primary_id": primaryID,
		}).Warn("Failed to project merge into graph")
		return
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id": primaryID,
		"merged_ids": mergedIDs,
	}).Debug("Projected merge into graph")
}

func (p *Projector) project(ctx context.Context, primaryID int64, mergedIDs []int64) error {
	contact, err := p.contacts.Get(ctx, primaryID)
	if err != nil {
		return err
	}

	statements := projectionStatements(contact, mergedIDs)

	_, err = p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt.cypher, stmt.params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// projectionStatements builds the writes for one settled merge. All
// statements run inside a single transaction.
func projectionStatements(contact *models.Contact, mergedIDs []int64) []statement {
	label := kindLabel(contact.Kind)

	props := map[string]any{
		"id":         contact.ID,
		"name":       contact.DisplayName(),
		"email":      contact.Email,
		"phone":      contact.Phone,
		"city":       contact.City,
		"state":      contact.State,
		"created_at": contact.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at": contact.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}

	statements := []statement{
		{
			cypher: fmt.Sprintf(`
				MERGE (c:%s {id: $id})
				SET c = $props
			`, label),
			params: map[string]any{
				"id":    contact.ID,
				"props": props,
			},
		},
	}

	if !normalizers.IsBlank(contact.Office) {
		statements = append(statements, statement{
			cypher: fmt.Sprintf(`
				MATCH (c:%s {id: $id})
				MERGE (o:Office {name: $office})
				MERGE (c)-[:LOCATED_AT]->(o)
			`, label),
			params: map[string]any{
				"id":     contact.ID,
				"office": contact.Office,
			},
		})
	}

	if len(mergedIDs) > 0 {
		statements = append(statements, statement{
			cypher: fmt.Sprintf(`
				MATCH (m:%s)
				WHERE m.id IN $merged_ids
				SET m.merged_into = $primary_id, m.deleted_at = datetime()
			`, label),
			params: map[string]any{
				"merged_ids": mergedIDs,
				"primary_id": contact.ID,
			},
		})
	}

	return statements
}

func kindLabel(kind models.Kind) string {
	if kind == models.KindOrganization {
		return "Organization"
	}
	return "Person"
}
