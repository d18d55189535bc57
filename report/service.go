// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mireportec/mireportec/metrics"
	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/spatial"
	"github.com/mireportec/mireportec/utils/htmlutils"
	"github.com/mireportec/mireportec/utils/textutils"
)

// Assigner finds the municipality responsible for a coordinate.
type Assigner interface {
	Assign(ctx context.Context, lat, lng float64) *municipality.Record
}

// NewReport is what a citizen submits.
type NewReport struct {
	CitizenID   string   `json:"citizen_id"`
	CitizenName string   `json:"citizen_name"`
	Description string   `json:"description"`
	Photos      []string `json:"photos"`
	Audio       string   `json:"audio"`
	Location    Location `json:"location"`
	Tags        []string `json:"tags"`
}

// Patch holds the fields a citizen may change on their report. Nil fields
// are left untouched.
type Patch struct {
	Description *string   `json:"description"`
	Photos      *[]string `json:"photos"`
	Audio       *string   `json:"audio"`
	Location    *Location `json:"location"`
	Tags        *[]string `json:"tags"`
}

// NewComment is a comment as submitted.
type NewComment struct {
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
}

// StatusUpdate is a staff decision on a report.
type StatusUpdate struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
	Author string `json:"author"`
}

// Nearby is a report along with its distance to a point.
type Nearby struct {
	Report   *Report `json:"report"`
	Distance float64 `json:"distance_meters"`
}

// Service implements the report lifecycle on top of a Repository.
type Service struct {
	repo     Repository
	assigner Assigner
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	locks    keyedMutex
}

// NewService creates a Service. assigner may be nil, reports then carry no
// municipality. A nil clock uses the real one.
func NewService(repo Repository, assigner Assigner, clock clockwork.Clock, m *metrics.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		repo:     repo,
		assigner: assigner,
		clock:    clock,
		metrics:  m,
	}
}

// Repository returns the underlying store.
func (s *Service) Repository() Repository {
	return s.repo
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newID builds ids like "MA1B2C3D-X7K2": the creation time in milliseconds in
// base 36 and four random characters.
func newID(now time.Time) string {
	var suffix [4]byte
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))] // #nosec G404 - not a secret
	}

	return strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix[:]))
}

func (s *Service) assign(ctx context.Context, l Location) *municipality.Record {
	if s.assigner == nil {
		return nil
	}

	return s.assigner.Assign(ctx, l.Lat, l.Lng)
}

// Create stores a new report. The municipality is assigned from the location
// before saving; failing to resolve it is not an error.
func (s *Service) Create(ctx context.Context, in NewReport) (*Report, error) {
	citizenID, err := NormalizeCitizenID(in.CitizenID)
	if err != nil {
		return nil, err
	}

	description := htmlutils.PlainText(in.Description)
	if description == "" {
		return nil, fmt.Errorf("description: %w", ErrEmptyText)
	}

	now := s.now()
	rep := &Report{
		ID:                newID(now),
		CitizenID:         citizenID,
		CitizenName:       htmlutils.PlainText(in.CitizenName),
		Description:       description,
		Photos:            trimmed(in.Photos),
		Audio:             strings.TrimSpace(in.Audio),
		Location:          Location{Lat: in.Location.Lat, Lng: in.Location.Lng, Address: htmlutils.PlainText(in.Location.Address)},
		Tags:              htmlutils.PlainTexts(in.Tags),
		CreatedAt:         now,
		UpdatedAt:         now,
		Status:            StatusUnreviewed,
		Voters:            []Vote{},
		Comments:          []Comment{},
		StaffNotes:        []Note{},
		MunicipalityNotes: []Note{},
	}

	rep.Municipality = s.assign(ctx, rep.Location)

	if err := s.repo.Save(rep); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}

	s.metrics.ObserveCreated()
	log.Printf("report %s created by %s", rep.ID, rep.CitizenID)

	return rep, nil
}

// Get returns a report by id.
func (s *Service) Get(id string) (*Report, error) {
	return s.repo.Get(id)
}

// List returns every report, newest first.
func (s *Service) List() ([]*Report, error) {
	return s.Search(Filters{})
}

// Search returns the reports matching f, newest first.
func (s *Service) Search(f Filters) ([]*Report, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}

	s.metrics.ObserveSearch()

	return Search(all, f), nil
}

// ListByCitizen returns the reports of a citizen, newest first.
func (s *Service) ListByCitizen(citizenID string) ([]*Report, error) {
	citizenID, err := NormalizeCitizenID(citizenID)
	if err != nil {
		return nil, err
	}

	return s.filter(func(r *Report) bool { return r.CitizenID == citizenID })
}

// ListForMunicipality returns the reports a municipality's staff works on.
// Names are compared loosely so "SAN_RAMON" finds "Municipalidad de San Ramón".
func (s *Service) ListForMunicipality(name string) ([]*Report, error) {
	target := textutils.KeyFolding(strings.TrimSpace(name))
	if target == "" {
		return []*Report{}, nil
	}

	return s.filter(func(r *Report) bool {
		if r.Municipality == nil {
			return false
		}

		key := textutils.KeyFolding(r.Municipality.Name)

		return key != "" && (strings.Contains(key, target) || strings.Contains(target, key))
	})
}

func (s *Service) filter(keep func(*Report) bool) ([]*Report, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}

	ret := []*Report{}

	for _, r := range all {
		if keep(r) {
			ret = append(ret, r)
		}
	}

	SortByDate(ret)

	return ret, nil
}

// mutate runs fn over the stored report under the report lock and saves the
// result.
func (s *Service) mutate(id, kind string, fn func(r *Report) error) (*Report, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rep, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}

	if err := fn(rep); err != nil {
		return nil, err
	}

	rep.UpdatedAt = s.now()

	if err := s.repo.Save(rep); err != nil {
		return nil, fmt.Errorf("saving report %s: %w", id, err)
	}

	s.metrics.ObserveMutation(kind)

	return rep, nil
}

// Update applies a citizen's edit to their own report. A new location
// assigns the municipality again.
func (s *Service) Update(ctx context.Context, id, citizenID string, p Patch) (*Report, error) {
	// geocode before taking the lock, it is slow
	var muni *municipality.Record
	if p.Location != nil {
		muni = s.assign(ctx, *p.Location)
	}

	return s.mutate(id, "update", func(r *Report) error {
		if !owns(r, citizenID) {
			return ErrForbidden
		}

		if p.Description != nil {
			d := htmlutils.PlainText(*p.Description)
			if d == "" {
				return fmt.Errorf("description: %w", ErrEmptyText)
			}

			r.Description = d
		}

		if p.Photos != nil {
			r.Photos = trimmed(*p.Photos)
		}

		if p.Audio != nil {
			r.Audio = strings.TrimSpace(*p.Audio)
		}

		if p.Tags != nil {
			r.Tags = htmlutils.PlainTexts(*p.Tags)
		}

		if p.Location != nil {
			r.Location = Location{Lat: p.Location.Lat, Lng: p.Location.Lng, Address: htmlutils.PlainText(p.Location.Address)}
			r.Municipality = muni
		}

		return nil
	})
}

func owns(r *Report, citizenID string) bool {
	id, err := NormalizeCitizenID(citizenID)

	return err == nil && id == r.CitizenID
}

// Delete removes a citizen's own report.
func (s *Service) Delete(id, citizenID string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	rep, err := s.repo.Get(id)
	if err != nil {
		return err
	}

	if !owns(rep, citizenID) {
		return ErrForbidden
	}

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	s.metrics.ObserveMutation("delete")

	return nil
}

// Vote toggles userID's vote. Voting the same value again withdraws it,
// voting the other value flips it. It returns the new score.
func (s *Service) Vote(id, userID string, value int) (int, error) {
	if value != 1 && value != -1 {
		return 0, ErrInvalidVote
	}

	rep, err := s.mutate(id, "vote", func(r *Report) error {
		applyVote(r, userID, value)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return rep.Score, nil
}

func applyVote(r *Report, userID string, value int) {
	for i, v := range r.Voters {
		if v.UserID != userID {
			continue
		}

		r.Score -= v.Value

		if v.Value == value {
			r.Voters = append(r.Voters[:i], r.Voters[i+1:]...)
		} else {
			r.Score += value
			r.Voters[i].Value = value
		}

		return
	}

	r.Score += value
	r.Voters = append(r.Voters, Vote{UserID: userID, Value: value})
}

// AddComment appends a comment and returns the report.
func (s *Service) AddComment(id string, c NewComment) (*Report, error) {
	text := htmlutils.PlainText(c.Text)
	if text == "" {
		return nil, fmt.Errorf("comment: %w", ErrEmptyText)
	}

	return s.mutate(id, "comment", func(r *Report) error {
		r.Comments = append(r.Comments, Comment{
			ID:         uuid.NewString(),
			AuthorID:   c.AuthorID,
			AuthorName: htmlutils.PlainText(c.AuthorName),
			Text:       text,
			CreatedAt:  s.now(),
		})

		return nil
	})
}

// UpdateStatus moves a report through the workflow. A non-blank note is
// kept in the staff history and shown to the citizen.
func (s *Service) UpdateStatus(id string, u StatusUpdate) (*Report, error) {
	if !u.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}

	note := htmlutils.PlainText(u.Note)

	return s.mutate(id, "status", func(r *Report) error {
		r.Status = u.Status

		if note != "" {
			n := Note{
				ID:        uuid.NewString(),
				Author:    htmlutils.PlainText(u.Author),
				Text:      note,
				Status:    u.Status,
				CreatedAt: s.now(),
			}
			r.StaffNotes = append(r.StaffNotes, n)
			r.MunicipalityNotes = append(r.MunicipalityNotes, n)
		}

		log.Printf("report %s moved to %q", id, u.Status)

		return nil
	})
}

// Facets lists the distinct municipalities and provinces found on reports.
type Facets struct {
	Municipalities []string `json:"municipalities"`
	Provinces      []string `json:"provinces"`
}

// Facets returns the sorted distinct municipality and province names.
func (s *Service) Facets() (*Facets, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}

	munis := map[string]bool{}
	provinces := map[string]bool{}

	for _, r := range all {
		if r.Municipality == nil {
			continue
		}

		if r.Municipality.Name != "" {
			munis[r.Municipality.Name] = true
		}

		if r.Municipality.Province != "" {
			provinces[r.Municipality.Province] = true
		}
	}

	return &Facets{Municipalities: sortedKeys(munis), Provinces: sortedKeys(provinces)}, nil
}

func sortedKeys(m map[string]bool) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}

	sort.Strings(ret)

	return ret
}

// Nearby returns the reports within radius meters of p, nearest first.
func (s *Service) Nearby(p spatial.Point, radius float64) ([]Nearby, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}

	ret := []Nearby{}

	for _, r := range all {
		rp := r.Location.Point()
		if d := p.HaversineDistance(&rp); d <= radius {
			ret = append(ret, Nearby{Report: r, Distance: d})
		}
	}

	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Distance < ret[j].Distance })

	return ret, nil
}

// Cells counts reports per H3 cell at resolution res.
func (s *Service) Cells(res int) ([]CellCount, error) {
	return s.repo.CountByCell(res)
}

// Reassign runs the municipality assignment again over stored reports,
// only over the ones without municipality when onlyMissing is set. progress,
// when not nil, is called after each report. It returns how many reports
// changed. A stored municipality is only dropped when the assigner tells the
// location is covered by none, never because the lookup failed.
func (s *Service) Reassign(ctx context.Context, onlyMissing bool, progress func()) (int, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return 0, fmt.Errorf("loading reports: %w", err)
	}

	changed := 0

	for _, r := range all {
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		if !onlyMissing || r.Municipality == nil {
			muni, sure := s.reassign(ctx, r.Location)

			switch {
			case ctx.Err() != nil:
				return changed, ctx.Err()
			case muni == nil && r.Municipality != nil && !sure:
				log.Printf("keeping %s for report %s, location could not be resolved", r.Municipality.Name, r.ID)
			case !sameMunicipality(muni, r.Municipality):
				if _, err := s.mutate(r.ID, "reassign", func(cur *Report) error {
					cur.Municipality = muni

					return nil
				}); err != nil {
					return changed, err
				}

				changed++
			}
		}

		if progress != nil {
			progress()
		}
	}

	return changed, nil
}

// explainer is implemented by assigners that tell why a coordinate got no
// municipality.
type explainer interface {
	Explain(ctx context.Context, lat, lng float64) municipality.Assignment
}

// reassign assigns l again. sure is false when a nil municipality may come
// from a failed lookup rather than from a location no municipality covers.
func (s *Service) reassign(ctx context.Context, l Location) (*municipality.Record, bool) {
	if s.assigner == nil {
		return nil, false
	}

	if e, ok := s.assigner.(explainer); ok {
		a := e.Explain(ctx, l.Lat, l.Lng)

		return a.Municipality, a.Municipality != nil || (a.Tier != municipality.TierIncomplete && !a.GeoInfo.IsZero())
	}

	muni := s.assigner.Assign(ctx, l.Lat, l.Lng)

	return muni, muni != nil
}

func sameMunicipality(a, b *municipality.Record) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
