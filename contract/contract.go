package contract

import (
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// ConnectionHandle abstracts one live transport session. The engine never
// touches the socket directly: it pushes events through Consume and tears
// the transport down through Close.
type ConnectionHandle interface {
	EventSink
	ID() domain.ConnectionID
	// LastActive reports when the transport last proved liveness
	// (read or pong). Consulted by the stale-session reaper.
	LastActive() time.Time
	Close(reason string) error
}

// LiveConnection pairs a registered Connection with its transport handle.
type LiveConnection struct {
	Connection domain.Connection
	Handle     ConnectionHandle
}

// IdentityDirectory is the external identity store collaborator.
// Ensure performs the find-or-create done at announce time.
type IdentityDirectory interface {
	Resolve(identityID string) (domain.Identity, error)
	Ensure(identityID string) (domain.Identity, error)
}

// MessageRecorder is the durable message store collaborator. The engine only
// appends; history reads belong to the external REST layer.
type MessageRecorder interface {
	Append(message domain.Message) error
}
