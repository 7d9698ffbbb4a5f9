package patient

import (
	"context"
	"net/url"
)

// Repository reads stored patients. Writes go through the request's
// db.Session, with *Patient as the entity.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Patient, error)
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*Patient, int, error)
}
