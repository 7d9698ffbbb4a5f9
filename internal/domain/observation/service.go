package observation

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

func (s *Service) Create(ctx context.Context, doc fhir.Document) (*Observation, error) {
	sess, err := db.SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}

	o := New(uuid.NewString())
	if err := o.FromFHIR(doc); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Observation, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies doc over the stored observation id. Members missing from
// doc keep their stored values.
func (s *Service) Update(ctx context.Context, id string, doc fhir.Document) (*Observation, error) {
	sess, err := db.SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if docID, ok, err := doc.String("id"); err != nil {
		return nil, err
	} else if ok && docID != id {
		return nil, fhir.Invalid("id", "resource id %q does not match URL id %q", docID, id)
	}

	if err := o.FromFHIR(doc); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	sess, err := db.SessionFromContext(ctx)
	if err != nil {
		return err
	}

	o, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.retrier.DeleteAndCommit(ctx, sess, o)
}

func (s *Service) Search(ctx context.Context, params url.Values, page pagination.Params) ([]*Observation, int, error) {
	return s.repo.Search(ctx, params, page.Count, page.Offset)
}

// save stages, commits and reloads o, reporting a subject that names no
// stored patient as a validation error.
func (s *Service) save(ctx context.Context, sess db.Session, o *Observation) error {
	err := s.retrier.SaveAndRefresh(ctx, sess, o)
	if db.ForeignKeyViolation(err) != nil {
		return fhir.Invalid("subject", "subject %s does not exist", o.SubjectReference())
	}
	return err
}
