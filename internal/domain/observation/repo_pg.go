package observation

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fhirlite/server/internal/platform/db"
	"github.com/fhirlite/server/internal/platform/fhir"
)

const observationCols = `id, status, category, code, subject_reference, effective_datetime,
	value_quantity, reference_range, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Observation, error) {
	o := &Observation{ID: id}
	if err := o.Load(ctx, db.QuerierFromContext(ctx, r.pool)); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*Observation, int, error) {
	q := fhir.NewSearchQuery("observations", observationCols)
	if err := q.ApplyParams(params, SearchParams); err != nil {
		return nil, 0, err
	}
	q.OrderBy("created_at ASC, id ASC")

	conn := db.QuerierFromContext(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count observations: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search observations: %w", err)
	}
	defer rows.Close()

	var items []*Observation
	for rows.Next() {
		o := &Observation{}
		if err := o.scan(rows); err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

// -- db.Entity --

func (o *Observation) EntityKey() string {
	return fhir.FormatReference(ResourceType, o.ID)
}

func (o *Observation) Save(ctx context.Context, q db.Querier) error {
	_, err := q.Exec(ctx, `
		INSERT INTO observations (id, status, category, code, subject_reference, effective_datetime,
			value_quantity, reference_range, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			category = EXCLUDED.category,
			code = EXCLUDED.code,
			subject_reference = EXCLUDED.subject_reference,
			effective_datetime = EXCLUDED.effective_datetime,
			value_quantity = EXCLUDED.value_quantity,
			reference_range = EXCLUDED.reference_range,
			updated_at = NOW()`,
		o.ID, o.Status, db.JSONB(o.Category), db.JSONB(o.Code), o.SubjectID, o.EffectiveDateTime,
		db.JSONB(o.ValueQuantity), db.JSONB(o.ReferenceRange),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", o.EntityKey(), err)
	}
	return nil
}

func (o *Observation) Remove(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, `DELETE FROM observations WHERE id = $1`, o.ID); err != nil {
		return fmt.Errorf("delete %s: %w", o.EntityKey(), err)
	}
	return nil
}

func (o *Observation) Load(ctx context.Context, q db.Querier) error {
	row := q.QueryRow(ctx, `SELECT `+observationCols+` FROM observations WHERE id = $1`, o.ID)
	return db.NotFound(o.scan(row))
}

func (o *Observation) scan(row pgx.Row) error {
	var (
		loaded                                   Observation
		category, code, valueQty, referenceRange []byte
	)
	err := row.Scan(
		&loaded.ID, &loaded.Status, &category, &code, &loaded.SubjectID, &loaded.EffectiveDateTime,
		&valueQty, &referenceRange, &loaded.CreatedAt, &loaded.UpdatedAt,
	)
	if err != nil {
		return err
	}

	loaded.Category = category
	loaded.Code = code
	loaded.ValueQuantity = valueQty
	loaded.ReferenceRange = referenceRange
	if loaded.EffectiveDateTime != nil {
		utc := loaded.EffectiveDateTime.UTC()
		loaded.EffectiveDateTime = &utc
	}

	*o = loaded
	return nil
}
