package oracles

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariants checked against a live database. The adjacency
// oracle is generated from rules so that it follows whatever table the
// actors were given.
func All(rules lifecycle.Rules) []Oracle {
	return []Oracle{
		{
			Name: "O1_status_matches_last_transition",
			SQL: `WITH last AS (
                      SELECT DISTINCT ON (claim_id) claim_id, payload->>'next_status' AS next_status
                      FROM claim_events
                      WHERE type = 'status_changed'
                      ORDER BY claim_id, id DESC)
                  SELECT c.id, c.status, l.next_status FROM claims c
                  JOIN last l ON l.claim_id = c.id
                  WHERE c.status <> l.next_status`,
		},
		{
			Name: "O2_closed_is_final",
			SQL: `SELECT later.* FROM claim_events closed
                  JOIN claim_events later ON later.claim_id = closed.claim_id
                       AND later.type = 'status_changed' AND later.id > closed.id
                  WHERE closed.type = 'status_changed' AND closed.payload->>'next_status' = 'closed'`,
		},
		{
			Name: "O3_transitions_follow_rules",
			SQL: fmt.Sprintf(`SELECT e.id, e.payload->>'previous_status', e.payload->>'next_status'
                  FROM claim_events e
                  WHERE e.type = 'status_changed'
                    AND (e.payload->>'previous_status', e.payload->>'next_status') NOT IN (%s)`, edgeList(rules)),
		},
		{
			Name: "O4_milestone_prerequisites",
			SQL: `SELECT e.* FROM claim_events e
                  WHERE e.type IN ('first_response', 'investigation_complete')
                    AND NOT EXISTS (
                        SELECT 1 FROM claim_events a
                        WHERE a.claim_id = e.claim_id AND a.type = 'acknowledged' AND a.id < e.id)`,
		},
		{
			Name: "O5_single_milestone_per_type",
			SQL: `SELECT claim_id, type, COUNT(*) FROM claim_events
                  WHERE type IN ('submitted', 'acknowledged', 'first_response', 'investigation_complete')
                  GROUP BY claim_id, type HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_outbox_drains",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O7_breach_notified_once",
			SQL: `SELECT key, payload->'milestones', COUNT(*) FROM outbox
                  WHERE topic = 'claim.sla_breached'
                  GROUP BY key, payload->'milestones' HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_events_append_only",
			SQL: `SELECT 'missing_no_mutate_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'no_mutate_claim_events')`,
		},
	}
}

func edgeList(rules lifecycle.Rules) string {
	var pairs []string
	for _, from := range lifecycle.AllStatuses() {
		for _, to := range rules.Targets(from) {
			pairs = append(pairs, fmt.Sprintf("('%s', '%s')", from, to))
		}
	}
	if len(pairs) == 0 {
		return "('', '')"
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool, rules lifecycle.Rules) (string, string, error) {
	for _, o := range All(rules) {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
