package observation

import (
	"context"
	"net/url"
)

// Repository reads stored observations. Writes go through the request's
// db.Session.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Observation, error)
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*Observation, int, error)
}
