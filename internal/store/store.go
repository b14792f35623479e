// Package store implements the scope store: the single owner of variable bindings,
// loop markers, return contexts, working directories and pipeline parent values for
// one execution root. Every operation is a request processed by one goroutine in
// arrival order.
package store

import (
	"sync"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/values"
)

const requestQueueCapacityConstant = 64

// ID identifies a scope, loop or return context.
type ID string

// PipelineToken identifies one post-processing chain evaluation.
type PipelineToken uint64

type response struct {
	value values.Value
	found bool
	text  string
	lane  uint64
	err   error
}

type request struct {
	run   func(*state) response
	reply chan response
}

// Store is the actor owning one execution root's mutable state.
type Store struct {
	requests     chan request
	stopped      chan struct{}
	exited       chan struct{}
	shutdownOnce sync.Once
}

// New starts a store whose working directory defaults to rootDirectory.
func New(rootDirectory string) *Store {
	storeInstance := &Store{
		requests: make(chan request, requestQueueCapacityConstant),
		stopped:  make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go storeInstance.serve(newState(rootDirectory))
	return storeInstance
}

// Root returns the handle of the root evaluation lane.
func (storeInstance *Store) Root() *Handle {
	return &Handle{store: storeInstance, lane: rootLaneConstant}
}

// Shutdown stops the actor. Pending and future requests fail with ErrStoreDisconnected.
func (storeInstance *Store) Shutdown() {
	storeInstance.shutdownOnce.Do(func() {
		close(storeInstance.stopped)
	})
	<-storeInstance.exited
}

func (storeInstance *Store) serve(currentState *state) {
	defer close(storeInstance.exited)
	for {
		select {
		case <-storeInstance.stopped:
			return
		case pending := <-storeInstance.requests:
			pending.reply <- pending.run(currentState)
		}
	}
}

func (storeInstance *Store) submit(run func(*state) response) response {
	reply := make(chan response, 1)
	select {
	case storeInstance.requests <- request{run: run, reply: reply}:
	case <-storeInstance.stopped:
		return disconnected()
	}
	select {
	case result := <-reply:
		return result
	case <-storeInstance.exited:
		select {
		case result := <-reply:
			return result
		default:
			return disconnected()
		}
	}
}

func disconnected() response {
	return response{err: runtimeerrors.ErrStoreDisconnected}
}
