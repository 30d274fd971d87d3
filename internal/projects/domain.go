package projects

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested project does not exist.
	ErrNotFound = errors.New("projects: not found")
	// ErrInvalidTransition rejects a status change outside the lifecycle.
	ErrInvalidTransition = errors.New("projects: invalid status transition")
	// ErrStartDateLocked rejects edits of the start date after the
	// project started.
	ErrStartDateLocked = errors.New("projects: start date is locked once the project starts")
)

// Estado is the project lifecycle status.
type Estado string

// Lifecycle states. Transitions are monotonic: pendiente → iniciado →
// {finalizado, cancelado}; nothing moves backwards.
const (
	EstadoPendiente  Estado = "pendiente"
	EstadoIniciado   Estado = "iniciado"
	EstadoFinalizado Estado = "finalizado"
	EstadoCancelado  Estado = "cancelado"
)

// CanTransition reports whether the lifecycle allows moving to next.
func (e Estado) CanTransition(next Estado) bool {
	switch e {
	case EstadoPendiente:
		return next == EstadoIniciado
	case EstadoIniciado:
		return next == EstadoFinalizado || next == EstadoCancelado
	default:
		return false
	}
}

// Project is a Scrum project. It owns its roles and memberships, which live
// in the rbac package.
type Project struct {
	ID             int64
	Nombre         string
	Descripcion    string
	FechaCreacion  time.Time
	FechaInicio    time.Time
	FechaFin       time.Time
	DuracionSprint int
	Estado         Estado
}
