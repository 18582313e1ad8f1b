package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_accepted_per_dog",
			SQL: `SELECT dog_id, COUNT(*) FROM custody_requests
                  WHERE status = 'accepted'
                  GROUP BY dog_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_accepted_matches_disposition",
			SQL: `SELECT r.id, r.kind, d.status FROM custody_requests r
                  JOIN dogs d ON d.id = r.dog_id
                  WHERE r.status = 'accepted'
                    AND d.status <> CASE r.kind WHEN 'claim' THEN 'reunited' ELSE 'adopted' END`,
		},
		{
			Name: "O3_no_pending_beside_accepted",
			SQL: `SELECT p.id, p.dog_id FROM custody_requests p
                  WHERE p.status = 'pending'
                    AND EXISTS (SELECT 1 FROM custody_requests a
                                WHERE a.dog_id = p.dog_id AND a.status = 'accepted')`,
		},
		{
			Name: "O4_single_active_per_user_kind",
			SQL: `SELECT dog_id, user_id, kind, COUNT(*) FROM custody_requests
                  WHERE status <> 'rejected'
                  GROUP BY dog_id, user_id, kind HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_resolution_stamps",
			SQL: `SELECT id, status, resolved_at, resolved_by FROM custody_requests
                  WHERE status <> 'pending'
                    AND (resolved_at IS NULL OR resolved_by IS NULL OR resolved_at < created_at)`,
		},
		{
			Name: "O6_no_submission_after_deadline",
			SQL: `SELECT r.id, r.created_at, d.intake_time, d.claim_window_days FROM custody_requests r
                  JOIN dogs d ON d.id = r.dog_id
                  WHERE r.created_at > d.intake_time + d.claim_window_days * interval '1 day'`,
		},
		{
			Name: "O7_terminal_dog_journaled",
			SQL: `SELECT d.id, d.status FROM dogs d
                  WHERE d.status IN ('reunited', 'adopted')
                    AND NOT EXISTS (SELECT 1 FROM timeline_events e
                                    WHERE e.dog_id = d.id AND e.type = 'DOG_STATUS_CHANGED')`,
		},
		{
			Name: "O8_outbox_not_stuck",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
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
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
