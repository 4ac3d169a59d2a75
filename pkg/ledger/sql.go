package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Statements are run one at a time; not every driver accepts a
// multi-statement Exec.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS actor (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		pluscode TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		info TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS transformation (
		id TEXT PRIMARY KEY,
		emitter TEXT NOT NULL,
		ts TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transformation_input (
		transformation_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (transformation_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS product (
		id TEXT PRIMARY KEY,
		weight BIGINT NOT NULL,
		type TEXT NOT NULL,
		varieties TEXT,
		transformation_id TEXT NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipment (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		confirmed_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipment_input (
		shipment_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (shipment_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sale (
		id TEXT PRIMARY KEY,
		seller TEXT NOT NULL,
		buyer TEXT NOT NULL,
		price TEXT NOT NULL,
		currency TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		confirmed_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_input (
		sale_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (sale_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS certificate (
		id TEXT PRIMARY KEY,
		emitter TEXT NOT NULL,
		receiver TEXT NOT NULL,
		type TEXT NOT NULL,
		beginning TIMESTAMP NOT NULL,
		expiration TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS practice (
		id TEXT PRIMARY KEY,
		emitter TEXT NOT NULL,
		receiver TEXT NOT NULL,
		type TEXT NOT NULL,
		ts TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transformation_input_product ON transformation_input (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_shipment_input_product ON shipment_input (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_input_product ON sale_input (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_certificate_receiver ON certificate (receiver)`,
	`CREATE INDEX IF NOT EXISTS idx_practice_receiver ON practice (receiver)`,
}

var tables = []string{
	"practice", "certificate", "sale_input", "sale", "shipment_input",
	"shipment", "product", "transformation_input", "transformation", "actor",
}

// Init creates the schema if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Reset drops every ledger table and recreates the schema.
func (s *SQLStore) Reset(ctx context.Context) error {
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("reset %s: %w", t, err)
		}
	}
	return s.Init(ctx)
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sqlView runs write-path validation lookups inside the write transaction.
type sqlView struct{ q querier }

func (v sqlView) Product(ctx context.Context, id string) (domain.Product, error) {
	return queryProduct(ctx, v.q, id)
}

func (v sqlView) Actor(ctx context.Context, id string) (domain.Actor, error) {
	return queryActor(ctx, v.q, id)
}

// --- Reader ---

func (s *SQLStore) InputsOf(ctx context.Context, productID string) ([]string, error) {
	var txID string
	err := s.db.QueryRowContext(ctx, `SELECT transformation_id FROM product WHERE id = $1`, productID).Scan(&txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", productID)
	}
	if err != nil {
		return nil, err
	}
	return queryIDs(ctx, s.db,
		`SELECT product_id FROM transformation_input WHERE transformation_id = $1 ORDER BY position`, txID)
}

func (s *SQLStore) Product(ctx context.Context, productID string) (domain.Product, error) {
	return queryProduct(ctx, s.db, productID)
}

func (s *SQLStore) Genesis(ctx context.Context, productID string) (domain.Genesis, error) {
	query := `
		SELECT t.id, t.emitter, a.name, t.ts
		FROM product p
		JOIN transformation t ON t.id = p.transformation_id
		LEFT JOIN actor a ON a.id = t.emitter
		WHERE p.id = $1`
	var (
		g    domain.Genesis
		name sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&g.TransformationID, &g.Emitter, &name, &g.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Genesis{}, domain.NotFound("product", productID)
	}
	if err != nil {
		return domain.Genesis{}, err
	}
	g.EmitterName = name.String
	g.Timestamp = g.Timestamp.UTC()
	return g, nil
}

const shipmentColumns = `s.id, s.sender, s.recipient, a.name, s.ts, s.confirmed_at`

func (s *SQLStore) ShipmentsContaining(ctx context.Context, productID string) ([]domain.Shipment, error) {
	query := `
		SELECT ` + shipmentColumns + `
		FROM shipment s
		JOIN shipment_input si ON si.shipment_id = s.id
		LEFT JOIN actor a ON a.id = s.recipient
		WHERE si.product_id = $1
		ORDER BY s.ts, s.id`
	return s.queryShipments(ctx, query, productID)
}

func (s *SQLStore) PayoutFor(ctx context.Context, productID string) (*domain.Payout, error) {
	query := `
		SELECT s.price, s.currency
		FROM sale s
		JOIN sale_input si ON si.sale_id = s.id
		WHERE si.product_id = $1
		ORDER BY s.ts, s.id
		LIMIT 1`
	var p domain.Payout
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&p.Amount, &p.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) Actor(ctx context.Context, actorID string) (domain.Actor, error) {
	return queryActor(ctx, s.db, actorID)
}

func (s *SQLStore) CertificatesValidAt(ctx context.Context, actorID string, ts time.Time) ([]domain.Certificate, error) {
	query := `SELECT id, emitter, receiver, type, beginning, expiration FROM certificate WHERE receiver = $1 ORDER BY beginning, id`
	rows, err := s.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var certs []domain.Certificate
	for rows.Next() {
		var c domain.Certificate
		if err := rows.Scan(&c.ID, &c.Emitter, &c.Receiver, &c.Type, &c.Beginning, &c.Expiration); err != nil {
			return nil, err
		}
		c.Beginning, c.Expiration = c.Beginning.UTC(), c.Expiration.UTC()
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Validity is checked in Go: SQLite compares timestamps as text.
	return validCertificates(certs, ts), nil
}

func (s *SQLStore) PracticesOf(ctx context.Context, actorID string) ([]domain.Practice, error) {
	query := `SELECT id, emitter, receiver, type, ts FROM practice WHERE receiver = $1 ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]domain.Practice, 0)
	for rows.Next() {
		var p domain.Practice
		if err := rows.Scan(&p.ID, &p.Emitter, &p.Receiver, &p.Type, &p.Timestamp); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- Directory ---

func (s *SQLStore) Actors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, location, pluscode, type, info FROM actor ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]domain.Actor, 0)
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) PendingFor(ctx context.Context, actorID string) (Pending, error) {
	if _, err := queryActor(ctx, s.db, actorID); err != nil {
		return Pending{}, err
	}

	shipments, err := s.queryShipments(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipment s
		LEFT JOIN actor a ON a.id = s.recipient
		WHERE s.recipient = $1 AND s.confirmed_at IS NULL
		ORDER BY s.ts, s.id`, actorID)
	if err != nil {
		return Pending{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seller, buyer, price, currency, ts, confirmed_at
		FROM sale
		WHERE buyer = $1 AND confirmed_at IS NULL
		ORDER BY ts, id`, actorID)
	if err != nil {
		return Pending{}, err
	}
	sales := make([]domain.Sale, 0)
	for rows.Next() {
		var (
			sa        domain.Sale
			confirmed sql.NullTime
		)
		if err := rows.Scan(&sa.ID, &sa.Seller, &sa.Buyer, &sa.Price, &sa.Currency, &sa.Timestamp, &confirmed); err != nil {
			_ = rows.Close()
			return Pending{}, err
		}
		sa.Timestamp = sa.Timestamp.UTC()
		sa.ConfirmedAt = nullTime(confirmed)
		sales = append(sales, sa)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return Pending{}, err
	}
	for i := range sales {
		if sales[i].Inputs, err = queryIDs(ctx, s.db,
			`SELECT product_id FROM sale_input WHERE sale_id = $1 ORDER BY position`, sales[i].ID); err != nil {
			return Pending{}, err
		}
	}

	return Pending{Shipments: shipments, Sales: sales}, nil
}

// holdingQuery selects unconsumed products whose party, taken from the last
// confirmed transfer in %[1]s or else the creator, is $1.
const holdingQuery = `
	SELECT p.id
	FROM product p
	JOIN transformation t ON t.id = p.transformation_id
	WHERE p.type <> $2
	  AND NOT EXISTS (SELECT 1 FROM transformation_input ti WHERE ti.product_id = p.id)
	  AND COALESCE((
		SELECT x.%[2]s
		FROM %[1]s x
		JOIN %[1]s_input xi ON xi.%[1]s_id = x.id
		WHERE xi.product_id = p.id AND x.confirmed_at IS NOT NULL
		ORDER BY x.ts DESC, x.id DESC
		LIMIT 1
	  ), t.emitter) = $1
	ORDER BY t.ts, p.id`

func (s *SQLStore) Inventory(ctx context.Context, actorID string) ([]domain.Product, error) {
	return s.holdings(ctx, actorID, fmt.Sprintf(holdingQuery, "shipment", "recipient"))
}

func (s *SQLStore) Ownership(ctx context.Context, actorID string) ([]domain.Product, error) {
	return s.holdings(ctx, actorID, fmt.Sprintf(holdingQuery, "sale", "buyer"))
}

func (s *SQLStore) holdings(ctx context.Context, actorID, query string) ([]domain.Product, error) {
	if _, err := queryActor(ctx, s.db, actorID); err != nil {
		return nil, err
	}
	ids, err := queryIDs(ctx, s.db, query, actorID, string(domain.ProductWeightLoss))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := queryProduct(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// --- Writer ---

func (s *SQLStore) RegisterActor(ctx context.Context, a domain.Actor) (domain.Actor, error) {
	a, err := planActor(a)
	if err != nil {
		return domain.Actor{}, err
	}
	info, err := marshalNullable(a.Info)
	if err != nil {
		return domain.Actor{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if exists, err := rowExists(ctx, tx, `SELECT 1 FROM actor WHERE id = $1`, a.ID); err != nil {
			return err
		} else if exists {
			return domain.Conflict("actor", a.ID, "actor already registered")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO actor (id, name, location, pluscode, type, info) VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.Name, a.Location, a.PlusCode, string(a.Type), info)
		return err
	})
	if err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

func (s *SQLStore) RecordTransformation(ctx context.Context, req TransformationRequest) (domain.Transformation, error) {
	var rec transformationRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if rec, err = planTransformation(ctx, sqlView{tx}, req); err != nil {
			return err
		}
		t := rec.Transformation
		if exists, err := rowExists(ctx, tx, `SELECT 1 FROM transformation WHERE id = $1`, t.ID); err != nil {
			return err
		} else if exists {
			return domain.Conflict("transformation", t.ID, "transformation already recorded")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transformation (id, emitter, ts) VALUES ($1, $2, $3)`,
			t.ID, t.Emitter, t.Timestamp); err != nil {
			return fmt.Errorf("insert transformation: %w", err)
		}
		for i, pid := range t.Inputs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transformation_input (transformation_id, product_id, position) VALUES ($1, $2, $3)`,
				t.ID, pid, i); err != nil {
				return fmt.Errorf("insert transformation input: %w", err)
			}
		}
		for i, p := range rec.Products {
			varieties, err := marshalNullable(p.Varieties)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO product (id, weight, type, varieties, transformation_id, position) VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, p.Weight, string(p.Type), varieties, t.ID, i); err != nil {
				return fmt.Errorf("insert product: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Transformation{}, err
	}
	return rec.Transformation, nil
}

func (s *SQLStore) RecordShipment(ctx context.Context, sh domain.Shipment) (domain.Shipment, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if sh, err = planShipment(ctx, sqlView{tx}, sh); err != nil {
			return err
		}
		if exists, err := rowExists(ctx, tx, `SELECT 1 FROM shipment WHERE id = $1`, sh.ID); err != nil {
			return err
		} else if exists {
			return domain.Conflict("shipment", sh.ID, "shipment already recorded")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shipment (id, sender, recipient, ts) VALUES ($1, $2, $3, $4)`,
			sh.ID, sh.Sender, sh.Recipient, sh.Timestamp); err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}
		for i, pid := range sh.Inputs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO shipment_input (shipment_id, product_id, position) VALUES ($1, $2, $3)`,
				sh.ID, pid, i); err != nil {
				return fmt.Errorf("insert shipment input: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	return sh, nil
}

func (s *SQLStore) ConfirmShipment(ctx context.Context, shipmentID, recipient string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			want      string
			confirmed sql.NullTime
		)
		err := tx.QueryRowContext(ctx, `SELECT recipient, confirmed_at FROM shipment WHERE id = $1`, shipmentID).Scan(&want, &confirmed)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("shipment", shipmentID)
		}
		if err != nil {
			return err
		}
		if err := checkConfirmation("shipment", shipmentID, recipient, want, nullTime(confirmed)); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE shipment SET confirmed_at = $1 WHERE id = $2`, at.UTC(), shipmentID)
		return err
	})
}

func (s *SQLStore) RecordSale(ctx context.Context, sa domain.Sale) (domain.Sale, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if sa, err = planSale(ctx, sqlView{tx}, sa); err != nil {
			return err
		}
		if exists, err := rowExists(ctx, tx, `SELECT 1 FROM sale WHERE id = $1`, sa.ID); err != nil {
			return err
		} else if exists {
			return domain.Conflict("sale", sa.ID, "sale already recorded")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sale (id, seller, buyer, price, currency, ts) VALUES ($1, $2, $3, $4, $5, $6)`,
			sa.ID, sa.Seller, sa.Buyer, sa.Price.String(), sa.Currency, sa.Timestamp); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		for i, pid := range sa.Inputs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sale_input (sale_id, product_id, position) VALUES ($1, $2, $3)`,
				sa.ID, pid, i); err != nil {
				return fmt.Errorf("insert sale input: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sa, nil
}

func (s *SQLStore) ConfirmSale(ctx context.Context, saleID, buyer string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			want      string
			confirmed sql.NullTime
		)
		err := tx.QueryRowContext(ctx, `SELECT buyer, confirmed_at FROM sale WHERE id = $1`, saleID).Scan(&want, &confirmed)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("sale", saleID)
		}
		if err != nil {
			return err
		}
		if err := checkConfirmation("sale", saleID, buyer, want, nullTime(confirmed)); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE sale SET confirmed_at = $1 WHERE id = $2`, at.UTC(), saleID)
		return err
	})
}

func (s *SQLStore) GrantCertificate(ctx context.Context, c domain.Certificate) (domain.Certificate, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = planCertificate(ctx, sqlView{tx}, c); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO certificate (id, emitter, receiver, type, beginning, expiration) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.Emitter, c.Receiver, c.Type, c.Beginning, c.Expiration)
		return err
	})
	if err != nil {
		return domain.Certificate{}, err
	}
	return c, nil
}

func (s *SQLStore) RecordPractice(ctx context.Context, p domain.Practice) (domain.Practice, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if p, err = planPractice(ctx, sqlView{tx}, p); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO practice (id, emitter, receiver, type, ts) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, p.Emitter, p.Receiver, p.Type, p.Timestamp)
		return err
	})
	if err != nil {
		return domain.Practice{}, err
	}
	return p, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func queryProduct(ctx context.Context, q querier, id string) (domain.Product, error) {
	query := `
		SELECT p.id, p.weight, p.type, p.varieties, t.ts, t.emitter, a.name
		FROM product p
		JOIN transformation t ON t.id = p.transformation_id
		LEFT JOIN actor a ON a.id = t.emitter
		WHERE p.id = $1`
	var (
		p         domain.Product
		typ       string
		varieties sql.NullString
		name      sql.NullString
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Weight, &typ, &varieties, &p.CreatedAt, &p.CreatedBy, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NotFound("product", id)
	}
	if err != nil {
		return domain.Product{}, err
	}
	p.Type = domain.ProductType(typ)
	p.CreatedAt = p.CreatedAt.UTC()
	p.CreatorName = name.String
	if varieties.Valid && varieties.String != "" {
		if err := json.Unmarshal([]byte(varieties.String), &p.Varieties); err != nil {
			return domain.Product{}, fmt.Errorf("product %s varieties: %w", id, err)
		}
	}
	return p, nil
}

func queryActor(ctx context.Context, q querier, id string) (domain.Actor, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, location, pluscode, type, info FROM actor WHERE id = $1`, id)
	a, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Actor{}, domain.NotFound("actor", id)
	}
	return a, err
}

func scanActor(r rowScanner) (domain.Actor, error) {
	var (
		a    domain.Actor
		typ  string
		info sql.NullString
	)
	if err := r.Scan(&a.ID, &a.Name, &a.Location, &a.PlusCode, &typ, &info); err != nil {
		return domain.Actor{}, err
	}
	a.Type = domain.ActorType(typ)
	if info.Valid && info.String != "" {
		if err := json.Unmarshal([]byte(info.String), &a.Info); err != nil {
			return domain.Actor{}, fmt.Errorf("actor %s info: %w", a.ID, err)
		}
	}
	return a, nil
}

// queryShipments scans shipment rows, then loads inputs once the cursor is
// closed (SQLite runs on a single connection).
func (s *SQLStore) queryShipments(ctx context.Context, query string, args ...any) ([]domain.Shipment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Shipment, 0)
	for rows.Next() {
		var (
			sh        domain.Shipment
			name      sql.NullString
			confirmed sql.NullTime
		)
		if err := rows.Scan(&sh.ID, &sh.Sender, &sh.Recipient, &name, &sh.Timestamp, &confirmed); err != nil {
			_ = rows.Close()
			return nil, err
		}
		sh.RecipientName = name.String
		sh.Timestamp = sh.Timestamp.UTC()
		sh.ConfirmedAt = nullTime(confirmed)
		result = append(result, sh)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if result[i].Inputs, err = queryIDs(ctx, s.db,
			`SELECT product_id FROM shipment_input WHERE shipment_id = $1 ORDER BY position`, result[i].ID); err != nil {
			return nil, err
		}
	}
	sortShipments(result)
	return result, nil
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func rowExists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// marshalNullable encodes v as JSON text, or SQL NULL when v is empty.
func marshalNullable[T any](v T) (sql.NullString, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if s := string(raw); s == "null" || s == "[]" || s == "{}" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
