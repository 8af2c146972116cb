package campaigns

import (
	"context"
	"database/sql"
)

type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

func (r *PGRepo) Create(ctx context.Context, c Campaign) error {
	const query = `
INSERT INTO campaigns (id, user_id, total, sent, failed, resume_name, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.Total,
		c.Sent,
		c.Failed,
		c.ResumeName,
		c.StartedAt,
		c.FinishedAt,
	)
	return err
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Campaign, error) {
	const query = `
SELECT id, user_id, total, sent, failed, resume_name, started_at, finished_at
FROM campaigns
WHERE user_id = $1
ORDER BY started_at DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.Total, &c.Sent, &c.Failed, &c.ResumeName, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
