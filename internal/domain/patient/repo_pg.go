package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fhirlite/server/internal/platform/db"
	"github.com/fhirlite/server/internal/platform/fhir"
)

const patientCols = `id, active, gender, birth_date, name, telecom, address, identifier, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	p := &Patient{ID: id}
	if err := p.Load(ctx, db.QuerierFromContext(ctx, r.pool)); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*Patient, int, error) {
	q := fhir.NewSearchQuery("patients", patientCols)
	if err := q.ApplyParams(params, SearchParams); err != nil {
		return nil, 0, err
	}
	q.OrderBy("created_at ASC, id ASC")

	conn := db.QuerierFromContext(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p := &Patient{}
		if err := p.scan(rows); err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- db.Entity --

func (p *Patient) EntityKey() string {
	return fhir.FormatReference(ResourceType, p.ID)
}

func (p *Patient) Save(ctx context.Context, q db.Querier) error {
	var telecom json.RawMessage
	if len(p.Telecom) > 0 {
		telecom = fhir.MarshalRaw(p.Telecom)
	}

	_, err := q.Exec(ctx, `
		INSERT INTO patients (id, active, gender, birth_date, name, telecom, address, identifier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			gender = EXCLUDED.gender,
			birth_date = EXCLUDED.birth_date,
			name = EXCLUDED.name,
			telecom = EXCLUDED.telecom,
			address = EXCLUDED.address,
			identifier = EXCLUDED.identifier,
			updated_at = NOW()`,
		p.ID, p.Active, p.Gender, p.BirthDate,
		db.JSONB(p.Name), db.JSONB(telecom), db.JSONB(p.Address), db.JSONB(p.Identifier),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", p.EntityKey(), err)
	}
	return nil
}

func (p *Patient) Remove(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, `DELETE FROM patients WHERE id = $1`, p.ID); err != nil {
		return fmt.Errorf("delete %s: %w", p.EntityKey(), err)
	}
	return nil
}

func (p *Patient) Load(ctx context.Context, q db.Querier) error {
	row := q.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, p.ID)
	return db.NotFound(p.scan(row))
}

func (p *Patient) scan(row pgx.Row) error {
	var (
		loaded                             Patient
		name, telecom, address, identifier []byte
	)
	err := row.Scan(
		&loaded.ID, &loaded.Active, &loaded.Gender, &loaded.BirthDate,
		&name, &telecom, &address, &identifier,
		&loaded.CreatedAt, &loaded.UpdatedAt,
	)
	if err != nil {
		return err
	}

	loaded.Name = name
	loaded.Address = address
	loaded.Identifier = identifier
	if len(telecom) > 0 {
		if err := json.Unmarshal(telecom, &loaded.Telecom); err != nil {
			return fmt.Errorf("decode telecom of patient %s: %w", loaded.ID, err)
		}
	}

	*p = loaded
	return nil
}
