package patient

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"

	"github.com/fhirlite/server/internal/platform/db"
	"github.com/fhirlite/server/internal/platform/fhir"
	"github.com/fhirlite/server/pkg/pagination"
)

type Service struct {
	repo    Repository
	retrier *db.Retrier
}

func NewService(repo Repository, retrier *db.Retrier) *Service {
	return &Service{repo: repo, retrier: retrier}
}

// Create builds a new patient from doc under a freshly generated id. Any id
// carried by the document is ignored.
func (s *Service) Create(ctx context.Context, doc fhir.Document) (*Patient, error) {
	sess, err := db.SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p := New(uuid.NewString())
	if err := p.FromFHIR(doc); err != nil {
		return nil, err
	}
	if err := s.retrier.SaveAndRefresh(ctx, sess, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces the stored patient id with the contents of doc.
func (s *Service) Update(ctx context.Context, id string, doc fhir.Document) (*Patient, error) {
	sess, err := db.SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if docID, ok, err := doc.String("id"); err != nil {
		return nil, err
	} else if ok && docID != id {
		return nil, fhir.Invalid("id", "resource id %q does not match URL id %q", docID, id)
	}

	if err := p.FromFHIR(doc); err != nil {
		return nil, err
	}
	if err := s.retrier.SaveAndRefresh(ctx, sess, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the patient and, through the foreign key, its observations.
// Deleting an absent patient succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	sess, err := db.SessionFromContext(ctx)
	if err != nil {
		return err
	}

	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.retrier.DeleteAndCommit(ctx, sess, p)
}

func (s *Service) Search(ctx context.Context, params url.Values, page pagination.Params) ([]*Patient, int, error) {
	return s.repo.Search(ctx, params, page.Count, page.Offset)
}
