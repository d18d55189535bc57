// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package report holds citizen reports: their storage, lifecycle and search.
package report

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/spatial"
)

var (
	// ErrNotFound is returned when no report has the requested id.
	ErrNotFound = errors.New("report not found")
	// ErrForbidden is returned when a citizen changes a report they don't own.
	ErrForbidden = errors.New("report belongs to another citizen")
	// ErrInvalidStatus is returned for statuses outside the workflow.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidVote is returned for votes other than 1 and -1.
	ErrInvalidVote = errors.New("vote must be 1 or -1")
	// ErrInvalidCitizen is returned for malformed cédulas.
	ErrInvalidCitizen = errors.New("citizen id must have 10 digits")
	// ErrEmptyText is returned when a required text is blank after sanitizing.
	ErrEmptyText = errors.New("text is required")
)

// Status is the stage of a report in the municipal workflow.
type Status string

// Workflow statuses.
const (
	StatusUnreviewed Status = "sin_revisar"
	StatusPending    Status = "Pendiente"
	StatusInProgress Status = "En proceso"
	StatusResolved   Status = "Resuelto"
	StatusRejected   Status = "Rechazado"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{StatusUnreviewed, StatusPending, StatusInProgress, StatusResolved, StatusRejected}

// Valid reports whether s is part of the workflow.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}

	return false
}

// Location is where the problem was reported.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Point returns the location coordinate.
func (l Location) Point() spatial.Point {
	return spatial.Point{Lat: l.Lat, Lng: l.Lng}
}

// Vote is a citizen's up (1) or down (-1) vote.
type Vote struct {
	UserID string `json:"user_id"`
	Value  int    `json:"value"`
}

// Comment is a citizen comment on a report.
type Comment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Note is a municipal staff annotation made when the status changes.
type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Report is a citizen report about a public-infrastructure problem.
type Report struct {
	ID           string               `json:"id"`
	CitizenID    string               `json:"citizen_id"`
	CitizenName  string               `json:"citizen_name"`
	Description  string               `json:"description"`
	Photos       []string             `json:"photos"`
	Audio        string               `json:"audio,omitempty"`
	Location     Location             `json:"location"`
	Municipality *municipality.Record `json:"municipality"`
	Tags         []string             `json:"tags"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Status       Status               `json:"status"`
	Score        int                  `json:"score"`
	Voters       []Vote               `json:"voters"`
	Comments     []Comment            `json:"comments"`

	// StaffNotes are internal follow-up notes, MunicipalityNotes the ones
	// shown to the citizen. Status changes with a note append to both.
	StaffNotes        []Note `json:"staff_notes"`
	MunicipalityNotes []Note `json:"municipality_notes"`
}

// VoteOf returns userID's vote, 0 when they haven't voted.
func (r *Report) VoteOf(userID string) int {
	for _, v := range r.Voters {
		if v.UserID == userID {
			return v.Value
		}
	}

	return 0
}

var citizenIDCleanup = regexp.MustCompile(`[\s-]`)

var citizenIDPattern = regexp.MustCompile(`^\d{10}$`)

// NormalizeCitizenID strips spaces and dashes from a cédula and checks it has
// exactly 10 digits.
func NormalizeCitizenID(id string) (string, error) {
	id = citizenIDCleanup.ReplaceAllString(id, "")
	if !citizenIDPattern.MatchString(id) {
		return "", ErrInvalidCitizen
	}

	return id, nil
}

// trimmed drops blank entries.
func trimmed(in []string) []string {
	ret := make([]string, 0, len(in))

	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			ret = append(ret, s)
		}
	}

	return ret
}
