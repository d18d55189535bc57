// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/utils/textutils"
	"github.com/uber/h3-go/v4"
)

// MaxCellResolution is the finest H3 resolution indexed per report.
const MaxCellResolution = 8

// CellCount is the number of reports inside an H3 cell.
type CellCount struct {
	Cell  string `json:"cell"`
	Count int    `json:"count"`
}

// Repository handles persistence of reports.
type Repository interface {
	// CreateSchema creates the report tables
	CreateSchema() error

	// GetAll returns every report in insertion order
	GetAll() ([]*Report, error)

	// Get returns the report with the given id or ErrNotFound
	Get(id string) (*Report, error)

	// Save inserts or replaces a report along with its votes, comments and notes
	Save(r *Report) error

	// Delete removes a report, ErrNotFound when it does not exist
	Delete(id string) error

	// Count returns the number of reports
	Count() (int, error)

	// CountByCell aggregates reports per H3 cell at the given resolution
	CountByCell(res int) ([]CellCount, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a new report repository.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

// DB returns the underlying database connection for advanced queries.
func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS reports_seq START 1;

		CREATE TABLE IF NOT EXISTS reports (
			id VARCHAR PRIMARY KEY,
			seq BIGINT NOT NULL DEFAULT nextval('reports_seq'),
			citizen_id VARCHAR NOT NULL,
			citizen_name VARCHAR NOT NULL,
			description VARCHAR NOT NULL,
			audio VARCHAR,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			address VARCHAR,
			municipality_name VARCHAR,
			municipality_province VARCHAR,
			municipality_canton VARCHAR,
			municipality_district VARCHAR,
			status VARCHAR NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			h3_res1 UBIGINT,
			h3_res2 UBIGINT,
			h3_res3 UBIGINT,
			h3_res4 UBIGINT,
			h3_res5 UBIGINT,
			h3_res6 UBIGINT,
			h3_res7 UBIGINT,
			h3_res8 UBIGINT
		);

		CREATE TABLE IF NOT EXISTS report_tags (
			report_id VARCHAR NOT NULL,
			pos INTEGER NOT NULL,
			value VARCHAR NOT NULL
		);

		CREATE TABLE IF NOT EXISTS report_photos (
			report_id VARCHAR NOT NULL,
			pos INTEGER NOT NULL,
			value VARCHAR NOT NULL
		);

		CREATE TABLE IF NOT EXISTS report_votes (
			report_id VARCHAR NOT NULL,
			pos INTEGER NOT NULL,
			user_id VARCHAR NOT NULL,
			value INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS report_comments (
			report_id VARCHAR NOT NULL,
			pos INTEGER NOT NULL,
			id VARCHAR NOT NULL,
			author_id VARCHAR NOT NULL,
			author_name VARCHAR NOT NULL,
			text VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS report_notes (
			report_id VARCHAR NOT NULL,
			kind VARCHAR NOT NULL, -- staff, municipality
			pos INTEGER NOT NULL,
			id VARCHAR NOT NULL,
			author VARCHAR NOT NULL,
			text VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
	`)

	return err
}

const (
	noteKindStaff        = "staff"
	noteKindMunicipality = "municipality"
)

var childTables = []string{"report_tags", "report_photos", "report_votes", "report_comments", "report_notes"}

func nullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// cells returns the H3 cells of the location at resolutions 1 to MaxCellResolution.
func cells(l Location) ([MaxCellResolution]int64, error) {
	var ret [MaxCellResolution]int64

	for res := 1; res <= MaxCellResolution; res++ {
		cell, err := l.Point().Cell(res)
		if err != nil {
			return ret, err
		}

		ret[res-1] = int64(cell)
	}

	return ret, nil
}

func (r *sqlRepository) Save(rep *Report) error {
	h3Cells, err := cells(rep.Location)
	if err != nil {
		return err
	}

	var muni municipality.Record
	if rep.Municipality != nil {
		muni = *rep.Municipality
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction saving report %s: %v", rep.ID, err)
		}
	}()

	args := []any{
		rep.CitizenID,
		rep.CitizenName,
		rep.Description,
		nullString(rep.Audio),
		rep.Location.Lat,
		rep.Location.Lng,
		nullString(rep.Location.Address),
		nullString(muni.Name),
		nullString(muni.Province),
		nullString(muni.Canton),
		nullString(muni.District),
		string(rep.Status),
		rep.Score,
		rep.CreatedAt.UTC(),
		rep.UpdatedAt.UTC(),
	}
	for _, c := range h3Cells {
		args = append(args, c)
	}

	args = append(args, rep.ID)

	result, err := tx.Exec(`
		UPDATE reports
		SET citizen_id = ?, citizen_name = ?, description = ?, audio = ?,
		    lat = ?, lng = ?, address = ?,
		    municipality_name = ?, municipality_province = ?, municipality_canton = ?, municipality_district = ?,
		    status = ?, score = ?, created_at = ?, updated_at = ?,
		    h3_res1 = ?, h3_res2 = ?, h3_res3 = ?, h3_res4 = ?, h3_res5 = ?, h3_res6 = ?, h3_res7 = ?, h3_res8 = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("updating report %s: %w", rep.ID, err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if updated == 0 {
		if _, err := tx.Exec(`
			INSERT INTO reports(
				citizen_id, citizen_name, description, audio,
				lat, lng, address,
				municipality_name, municipality_province, municipality_canton, municipality_district,
				status, score, created_at, updated_at,
				h3_res1, h3_res2, h3_res3, h3_res4, h3_res5, h3_res6, h3_res7, h3_res8,
				id
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...); err != nil {
			return fmt.Errorf("inserting report %s: %w", rep.ID, err)
		}
	}

	for _, table := range childTables {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE report_id = ?`, rep.ID); err != nil {
			return fmt.Errorf("clearing %s of %s: %w", table, rep.ID, err)
		}
	}

	if err := saveChildren(tx, rep); err != nil {
		return fmt.Errorf("saving children of %s: %w", rep.ID, err)
	}

	return tx.Commit()
}

func saveChildren(tx *sql.Tx, rep *Report) error {
	for i, tag := range rep.Tags {
		if _, err := tx.Exec(`INSERT INTO report_tags VALUES (?, ?, ?)`, rep.ID, i, tag); err != nil {
			return err
		}
	}

	for i, photo := range rep.Photos {
		if _, err := tx.Exec(`INSERT INTO report_photos VALUES (?, ?, ?)`, rep.ID, i, photo); err != nil {
			return err
		}
	}

	for i, v := range rep.Voters {
		if _, err := tx.Exec(`INSERT INTO report_votes VALUES (?, ?, ?, ?)`, rep.ID, i, v.UserID, v.Value); err != nil {
			return err
		}
	}

	for i, c := range rep.Comments {
		if _, err := tx.Exec(`INSERT INTO report_comments VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, i, c.ID, c.AuthorID, c.AuthorName, c.Text, c.CreatedAt.UTC()); err != nil {
			return err
		}
	}

	notes := map[string][]Note{
		noteKindStaff:        rep.StaffNotes,
		noteKindMunicipality: rep.MunicipalityNotes,
	}
	for kind, list := range notes {
		for i, n := range list {
			if _, err := tx.Exec(`INSERT INTO report_notes VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rep.ID, kind, i, n.ID, n.Author, n.Text, string(n.Status), n.CreatedAt.UTC()); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *sqlRepository) GetAll() ([]*Report, error) {
	return r.query("", nil)
}

func (r *sqlRepository) Get(id string) (*Report, error) {
	reports, err := r.query("WHERE r.id = ?", []any{id})
	if err != nil {
		return nil, err
	}

	if len(reports) == 0 {
		return nil, ErrNotFound
	}

	return reports[0], nil
}

func (r *sqlRepository) query(where string, args []any) ([]*Report, error) {
	rows, err := r.db.Query(`
		SELECT
			r.id, r.citizen_id, r.citizen_name, r.description, r.audio,
			r.lat, r.lng, r.address,
			r.municipality_name, r.municipality_province, r.municipality_canton, r.municipality_district,
			r.status, r.score, r.created_at, r.updated_at,
			(SELECT list(t.value ORDER BY t.pos) FROM report_tags t WHERE t.report_id = r.id),
			(SELECT list(p.value ORDER BY p.pos) FROM report_photos p WHERE p.report_id = r.id)
		FROM reports r
		`+where+`
		ORDER BY r.seq
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var (
		ret  []*Report
		byID = make(map[string]*Report)
	)

	for rows.Next() {
		var (
			rep                    Report
			audio, address         sql.NullString
			muniName, muniProvince sql.NullString
			muniCanton, muniDist   sql.NullString
			status                 string
			tags, photos           any
		)

		if err := rows.Scan(
			&rep.ID, &rep.CitizenID, &rep.CitizenName, &rep.Description, &audio,
			&rep.Location.Lat, &rep.Location.Lng, &address,
			&muniName, &muniProvince, &muniCanton, &muniDist,
			&status, &rep.Score, &rep.CreatedAt, &rep.UpdatedAt,
			&tags, &photos,
		); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}

		rep.Audio = audio.String
		rep.Location.Address = address.String
		rep.Status = Status(status)

		if muniName.Valid {
			rep.Municipality = &municipality.Record{
				Name:     muniName.String,
				Province: muniProvince.String,
				Canton:   muniCanton.String,
				District: muniDist.String,
			}
		}

		var ok bool
		if rep.Tags, ok = textutils.AnyToStringSlice(tags); !ok {
			return nil, fmt.Errorf("unexpected tags type %T for %s", tags, rep.ID)
		}

		if rep.Photos, ok = textutils.AnyToStringSlice(photos); !ok {
			return nil, fmt.Errorf("unexpected photos type %T for %s", photos, rep.ID)
		}

		// empty lists rather than nil, so every read has the shape of a new report
		if rep.Tags == nil {
			rep.Tags = []string{}
		}

		if rep.Photos == nil {
			rep.Photos = []string{}
		}

		rep.Voters = []Vote{}
		rep.Comments = []Comment{}
		rep.StaffNotes = []Note{}
		rep.MunicipalityNotes = []Note{}

		ret = append(ret, &rep)
		byID[rep.ID] = &rep
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ret) == 0 {
		return ret, nil
	}

	if err := r.loadVotes(byID, where, args); err != nil {
		return nil, err
	}

	if err := r.loadComments(byID, where, args); err != nil {
		return nil, err
	}

	if err := r.loadNotes(byID, where, args); err != nil {
		return nil, err
	}

	return ret, nil
}

// childWhere scopes a child table query with the same filter applied to the
// reports. where refers to the reports table as r.
func childWhere(where string) string {
	if where == "" {
		return ""
	}

	return "WHERE c.report_id IN (SELECT r.id FROM reports r " + where + ")"
}

func (r *sqlRepository) loadVotes(byID map[string]*Report, where string, args []any) error {
	rows, err := r.db.Query(`
		SELECT c.report_id, c.user_id, c.value
		FROM report_votes c `+childWhere(where)+`
		ORDER BY c.report_id, c.pos
	`, args...)
	if err != nil {
		return fmt.Errorf("querying votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reportID string
			v        Vote
		)

		if err := rows.Scan(&reportID, &v.UserID, &v.Value); err != nil {
			return fmt.Errorf("scanning vote: %w", err)
		}

		if rep, ok := byID[reportID]; ok {
			rep.Voters = append(rep.Voters, v)
		}
	}

	return rows.Err()
}

func (r *sqlRepository) loadComments(byID map[string]*Report, where string, args []any) error {
	rows, err := r.db.Query(`
		SELECT c.report_id, c.id, c.author_id, c.author_name, c.text, c.created_at
		FROM report_comments c `+childWhere(where)+`
		ORDER BY c.report_id, c.pos
	`, args...)
	if err != nil {
		return fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reportID string
			c        Comment
		)

		if err := rows.Scan(&reportID, &c.ID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt); err != nil {
			return fmt.Errorf("scanning comment: %w", err)
		}

		if rep, ok := byID[reportID]; ok {
			rep.Comments = append(rep.Comments, c)
		}
	}

	return rows.Err()
}

func (r *sqlRepository) loadNotes(byID map[string]*Report, where string, args []any) error {
	rows, err := r.db.Query(`
		SELECT c.report_id, c.kind, c.id, c.author, c.text, c.status, c.created_at
		FROM report_notes c `+childWhere(where)+`
		ORDER BY c.report_id, c.kind, c.pos
	`, args...)
	if err != nil {
		return fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reportID, kind, status string
			n                      Note
		)

		if err := rows.Scan(&reportID, &kind, &n.ID, &n.Author, &n.Text, &status, &n.CreatedAt); err != nil {
			return fmt.Errorf("scanning note: %w", err)
		}

		n.Status = Status(status)

		rep, ok := byID[reportID]
		if !ok {
			continue
		}

		switch kind {
		case noteKindStaff:
			rep.StaffNotes = append(rep.StaffNotes, n)
		case noteKindMunicipality:
			rep.MunicipalityNotes = append(rep.MunicipalityNotes, n)
		default:
			log.Printf("ignoring note %s of unknown kind %q", n.ID, kind)
		}
	}

	return rows.Err()
}

func (r *sqlRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction deleting report %s: %v", id, err)
		}
	}()

	result, err := tx.Exec(`DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting report %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	for _, table := range childTables {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE report_id = ?`, id); err != nil {
			return fmt.Errorf("deleting %s of %s: %w", table, id, err)
		}
	}

	return tx.Commit()
}

func (r *sqlRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&count)

	return count, err
}

func (r *sqlRepository) CountByCell(res int) ([]CellCount, error) {
	if res < 1 || res > MaxCellResolution {
		return nil, fmt.Errorf("resolution %d out of range 1..%d", res, MaxCellResolution)
	}

	column := fmt.Sprintf("h3_res%d", res)

	rows, err := r.db.Query(`
		SELECT ` + column + `, COUNT(*) AS n
		FROM reports
		WHERE ` + column + ` IS NOT NULL
		GROUP BY 1
		ORDER BY n DESC, 1
	`)
	if err != nil {
		return nil, fmt.Errorf("counting reports by cell: %w", err)
	}
	defer rows.Close()

	ret := []CellCount{}

	for rows.Next() {
		var (
			cell  uint64
			count int
		)

		if err := rows.Scan(&cell, &count); err != nil {
			return nil, fmt.Errorf("scanning cell count: %w", err)
		}

		ret = append(ret, CellCount{Cell: h3.Cell(cell).String(), Count: count})
	}

	return ret, rows.Err()
}
