package campaigns

import "context"

// MaxList caps history listings.
const MaxList = 50

type Repo interface {
	Create(ctx context.Context, c Campaign) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Campaign, error)
}
