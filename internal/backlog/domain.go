// Package backlog implements the product backlog: user stories, sprints,
// and story comments. Stories belong to one project; sprints group a slice
// of the project team around a date range.
package backlog

import (
	"errors"
	"time"
)

// ErrNotFound indicates the requested story or sprint does not exist.
var ErrNotFound = errors.New("backlog: not found")

// ErrInvalidHours indicates a negative hours value.
var ErrInvalidHours = errors.New("backlog: hours must not be negative")

// ErrInvalidEstado indicates an unknown story or sprint status code.
var ErrInvalidEstado = errors.New("backlog: invalid estado")

// ErrNotMember indicates a sprint team candidate who is not part of the
// project team.
var ErrNotMember = errors.New("backlog: user is not a project member")

// Estado is the three-state workflow shared by stories and sprints.
type Estado string

const (
	EstadoPendiente  Estado = "P"
	EstadoIniciada   Estado = "I"
	EstadoFinalizada Estado = "F"
)

// Valid reports whether the code is one of the known states.
func (e Estado) Valid() bool {
	switch e {
	case EstadoPendiente, EstadoIniciada, EstadoFinalizada:
		return true
	}
	return false
}

// UserStory is a backlog item. HorasEstimadas is set when the story is
// groomed; HorasTrabajadas accumulates as developers log progress.
type UserStory struct {
	ID              int64
	ProjectID       int64
	Nombre          string
	Descripcion     string
	Estado          Estado
	HorasEstimadas  float64
	HorasTrabajadas float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Sprint is a time-boxed iteration with its own sub-team.
type Sprint struct {
	ID          int64
	ProjectID   int64
	Nombre      string
	Descripcion string
	FechaInicio time.Time
	FechaFin    time.Time
	Estado      Estado
	Equipo      []int64
}

// Comment is a remark on a story. Comments are removed together with their
// story.
type Comment struct {
	ID      int64
	StoryID int64
	AutorID int64
	Texto   string
	Fecha   time.Time
}
