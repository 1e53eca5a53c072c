// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package sqlite implements the storage engine boundary on SQLite with the
// sqlite-vec extension. Each collection gets its own vec0 virtual table plus
// a companion payload table; a catalog table records collection specs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vgate-dev/vgate/internal/backend"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ backend.Engine = (*Engine)(nil)

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Engine implements backend.Engine backed by SQLite with sqlite-vec.
type Engine struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dbPath and initialises the
// collection catalog.
func Open(dbPath string) (*Engine, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUnavailable, "pinging sqlite db")
	}

	const catalogDDL = `
CREATE TABLE IF NOT EXISTS collections (
	name         TEXT PRIMARY KEY,
	dimensions   INTEGER NOT NULL,
	metric       TEXT NOT NULL,
	index_params TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := db.Exec(catalogDDL); err != nil {
		_ = db.Close()
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "creating collection catalog")
	}

	return &Engine{db: db}, nil
}

func (e *Engine) CreateCollection(ctx context.Context, spec vector.Collection) error {
	if !collectionNameRe.MatchString(spec.Name) {
		return vgerr.New(vgerr.CodeCollectionInvalid,
			"collection name must match [a-zA-Z][a-zA-Z0-9_]*", vgerr.FieldCollection(spec.Name))
	}

	var distMetric string
	switch spec.Metric {
	case vector.MetricCosine:
		distMetric = "cosine"
	case vector.MetricEuclidean:
		distMetric = "L2"
	default:
		// vec0 supports L2 and cosine only.
		return vgerr.Errorf(vgerr.CodeCollectionInvalid,
			"metric %q is not supported by the sqlite backend", spec.Metric)
	}

	existing, err := e.DescribeCollection(ctx, spec.Name)
	if err == nil {
		if existing.Dimensions == spec.Dimensions && existing.Metric == spec.Metric {
			return vgerr.New(vgerr.CodeCollectionExists,
				"collection already exists", vgerr.FieldCollection(spec.Name))
		}
		return vgerr.New(vgerr.CodeCollectionExists,
			"collection already exists with a different spec", vgerr.FieldCollection(spec.Name))
	}
	if !vgerr.IsNotFound(err) {
		return err
	}

	paramsJSON := []byte("{}")
	if len(spec.IndexParams) > 0 {
		paramsJSON, err = json.Marshal(spec.IndexParams)
		if err != nil {
			return vgerr.Wrap(err, vgerr.CodeCollectionInvalid, "marshalling index params")
		}
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=%s)`,
		vecTable(spec.Name), spec.Dimensions, distMetric,
	)
	if _, err := e.db.ExecContext(ctx, vecDDL); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "creating vec0 table",
			vgerr.FieldCollection(spec.Name))
	}

	payloadDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '{}'
)`, payloadTable(spec.Name))
	if _, err := e.db.ExecContext(ctx, payloadDDL); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "creating payload table",
			vgerr.FieldCollection(spec.Name))
	}

	const catQ = `INSERT INTO collections(name, dimensions, metric, index_params) VALUES (?, ?, ?, ?)`
	if _, err := e.db.ExecContext(ctx, catQ, spec.Name, spec.Dimensions, string(spec.Metric), string(paramsJSON)); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "registering collection",
			vgerr.FieldCollection(spec.Name))
	}
	return nil
}

func (e *Engine) DescribeCollection(ctx context.Context, name string) (vector.Collection, error) {
	const q = `SELECT name, dimensions, metric, index_params FROM collections WHERE name = ?`

	var col vector.Collection
	var metric, paramsJSON string
	err := e.db.QueryRowContext(ctx, q, name).Scan(&col.Name, &col.Dimensions, &metric, &paramsJSON)
	if err == sql.ErrNoRows {
		return vector.Collection{}, vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(name))
	}
	if err != nil {
		return vector.Collection{}, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure,
			"describing collection", vgerr.FieldCollection(name))
	}

	col.Metric = vector.Metric(metric)
	if paramsJSON != "" && paramsJSON != "{}" {
		if err := json.Unmarshal([]byte(paramsJSON), &col.IndexParams); err != nil {
			return vector.Collection{}, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure,
				"unmarshalling index params", vgerr.FieldCollection(name))
		}
	}
	return col, nil
}

func (e *Engine) DropCollection(ctx context.Context, name string) error {
	if _, err := e.DescribeCollection(ctx, name); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+vecTable(name)); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "dropping vec0 table",
			vgerr.FieldCollection(name))
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+payloadTable(name)); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "dropping payload table",
			vgerr.FieldCollection(name))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "deregistering collection",
			vgerr.FieldCollection(name))
	}

	if err := tx.Commit(); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "committing collection drop")
	}
	return nil
}

func (e *Engine) ListCollections(ctx context.Context) ([]vector.Collection, error) {
	const q = `SELECT name FROM collections ORDER BY name`

	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "listing collections")
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "scanning collection name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "iterating collections")
	}

	cols := make([]vector.Collection, 0, len(names))
	for _, name := range names {
		col, err := e.DescribeCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (e *Engine) Upsert(ctx context.Context, rec vector.Record) error {
	col, err := e.DescribeCollection(ctx, rec.Collection)
	if err != nil {
		return err
	}
	if len(rec.Embedding) != col.Dimensions {
		return vgerr.Errorf(vgerr.CodeVectorDimensionMismatch,
			"embedding has %d dimensions, collection %q expects %d",
			len(rec.Embedding), col.Name, col.Dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(rec.Embedding)
	if err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendInvalidInput, "serializing embedding")
	}

	payloadJSON := []byte("{}")
	if len(rec.Payload) > 0 {
		payloadJSON, err = json.Marshal(rec.Payload)
		if err != nil {
			return vgerr.Wrap(err, vgerr.CodeBackendInvalidInput, "marshalling payload")
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+vecTable(rec.Collection)+` WHERE id = ?`, rec.ID); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "deleting existing vector",
			vgerr.FieldRecordID(rec.ID))
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+vecTable(rec.Collection)+`(id, embedding) VALUES (?, ?)`, rec.ID, blob); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "inserting vector",
			vgerr.FieldRecordID(rec.ID))
	}

	payloadQ := `INSERT INTO ` + payloadTable(rec.Collection) + `(id, payload) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.ExecContext(ctx, payloadQ, rec.ID, string(payloadJSON)); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "upserting payload",
			vgerr.FieldRecordID(rec.ID))
	}

	if err := tx.Commit(); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "committing upsert")
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, collection, id string) (vector.Record, error) {
	if _, err := e.DescribeCollection(ctx, collection); err != nil {
		return vector.Record{}, err
	}

	q := `SELECT v.embedding, COALESCE(p.payload, '{}')
FROM ` + vecTable(collection) + ` v
LEFT JOIN ` + payloadTable(collection) + ` p ON p.id = v.id
WHERE v.id = ?`

	var blob []byte
	var payloadJSON string
	err := e.db.QueryRowContext(ctx, q, id).Scan(&blob, &payloadJSON)
	if err == sql.ErrNoRows {
		return vector.Record{}, vgerr.New(vgerr.CodeVectorNotFound,
			"record not found", vgerr.FieldCollection(collection), vgerr.FieldRecordID(id))
	}
	if err != nil {
		return vector.Record{}, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure,
			"reading record", vgerr.FieldRecordID(id))
	}

	rec := vector.Record{ID: id, Collection: collection, Embedding: deserializeFloat32(blob)}
	if payloadJSON != "" && payloadJSON != "{}" {
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return vector.Record{}, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure,
				"unmarshalling payload", vgerr.FieldRecordID(id))
		}
	}
	return rec, nil
}

func (e *Engine) Delete(ctx context.Context, collection string, ids []string, filter map[string]any) (int, error) {
	if _, err := e.DescribeCollection(ctx, collection); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		matched, err := e.idsMatchingFilter(ctx, collection, filter)
		if err != nil {
			return 0, err
		}
		ids = matched
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM `+vecTable(collection)+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "deleting vectors")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+payloadTable(collection)+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return 0, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "deleting payloads")
	}

	if err := tx.Commit(); err != nil {
		return 0, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "committing delete")
	}

	count, _ := res.RowsAffected()
	return int(count), nil
}

func (e *Engine) Search(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	col, err := e.DescribeCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	if len(req.QueryVector) != col.Dimensions {
		return nil, vgerr.Errorf(vgerr.CodeVectorDimensionMismatch,
			"query has %d dimensions, collection %q expects %d",
			len(req.QueryVector), col.Name, col.Dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(req.QueryVector)
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendInvalidInput, "serializing query vector")
	}

	// Payload predicates are pushed down as json_extract conditions on the
	// joined payload table rather than filtered in-process.
	where, args := filterClause(req.Filter)

	// KNN with a widened k when a filter applies, since vec0 ranks before
	// the payload predicate prunes.
	k := req.TopK
	if k <= 0 {
		k = 10
	}
	knnK := k
	if len(req.Filter) > 0 {
		knnK = k * 8
	}

	q := `SELECT v.id, v.distance, COALESCE(p.payload, '{}')
FROM ` + vecTable(req.Collection) + ` v
LEFT JOIN ` + payloadTable(req.Collection) + ` p ON p.id = v.id
WHERE v.embedding MATCH ? AND k = ?` + where + `
ORDER BY v.distance`

	queryArgs := append([]any{blob, knnK}, args...)
	rows, err := e.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "searching vectors",
			vgerr.FieldCollection(req.Collection))
	}
	defer func() { _ = rows.Close() }()

	var points []vector.ScoredPoint
	for rows.Next() {
		var pt vector.ScoredPoint
		var distance float64
		var payloadJSON string

		if err := rows.Scan(&pt.ID, &distance, &payloadJSON); err != nil {
			return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "scanning search result")
		}

		pt.Score = scoreFromDistance(col.Metric, distance)
		if req.ScoreThreshold != nil && pt.Score < *req.ScoreThreshold {
			continue
		}
		if payloadJSON != "" && payloadJSON != "{}" {
			if err := json.Unmarshal([]byte(payloadJSON), &pt.Payload); err != nil {
				return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "unmarshalling payload")
			}
		}
		points = append(points, pt)
		if len(points) == k {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "iterating search results")
	}

	return points, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUnavailable, "pinging sqlite db")
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) idsMatchingFilter(ctx context.Context, collection string, filter map[string]any) ([]string, error) {
	where, args := filterClause(filter)
	q := `SELECT id FROM ` + payloadTable(collection) + ` p WHERE 1=1` + where

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "selecting records by filter")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "scanning record id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// filterClause renders equality predicates over payload fields as
// json_extract conditions. Returns a leading " AND ..." fragment.
func filterClause(filter map[string]any) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}

	var sb strings.Builder
	var args []any
	for k, v := range filter {
		sb.WriteString(" AND json_extract(p.payload, ?) = ?")
		args = append(args, "$."+k, v)
	}
	return sb.String(), args
}

// scoreFromDistance maps vec0 distance (lower = more similar) to the
// gateway's descending score convention.
func scoreFromDistance(metric vector.Metric, distance float64) float64 {
	if metric == vector.MetricCosine {
		return 1 - distance
	}
	return -distance
}

func vecTable(collection string) string     { return "vec_" + collection }
func payloadTable(collection string) string { return "payload_" + collection }

func deserializeFloat32(blob []byte) []float32 {
	out := make([]float32, 0, len(blob)/4)
	for i := 0; i+4 <= len(blob); i += 4 {
		bits := binary.LittleEndian.Uint32(blob[i:])
		out = append(out, math.Float32frombits(bits))
	}
	return out
}
