package store

import (
	"fmt"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/values"
)

// Handle addresses the store on behalf of one evaluation lane.
type Handle struct {
	store *Store
	lane  uint64
}

func (handle *Handle) withLane(operation func(*state, *lane) response) response {
	return handle.store.submit(func(currentState *state) response {
		laneState, laneError := currentState.lane(handle.lane)
		if laneError != nil {
			return response{err: laneError}
		}
		return operation(currentState, laneState)
	})
}

func (handle *Handle) apply(operation func(*state, *lane) error) error {
	return handle.withLane(func(currentState *state, laneState *lane) response {
		return response{err: operation(currentState, laneState)}
	}).err
}

// Fork creates a lane for a concurrently evaluated branch. Lookups in the new lane
// fall through to the scope active in the receiver at fork time.
func (handle *Handle) Fork() (*Handle, error) {
	result := handle.withLane(func(currentState *state, laneState *lane) response {
		identifier := currentState.nextLane
		currentState.nextLane++
		forked := &lane{}
		if active := laneState.current(); active != nil {
			forked.active = []*scope{active}
		}
		currentState.lanes[identifier] = forked
		return response{lane: identifier}
	})
	if result.err != nil {
		return nil, result.err
	}
	return &Handle{store: handle.store, lane: result.lane}, nil
}

// Release drops a forked lane. The root lane cannot be released.
func (handle *Handle) Release() error {
	if handle.lane == rootLaneConstant {
		return nil
	}
	return handle.apply(func(currentState *state, laneState *lane) error {
		delete(currentState.lanes, handle.lane)
		return nil
	})
}

// Open creates an isolated scope; its lookups never reach the caller's bindings.
func (handle *Handle) Open(identifier ID) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		return currentState.open(laneState, identifier, nil)
	})
}

// OpenNested creates a scope whose lookups fall through to the active scope.
func (handle *Handle) OpenNested(identifier ID) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		return currentState.open(laneState, identifier, laneState.current())
	})
}

// Close destroys the most recently opened scope of the lane.
func (handle *Handle) Close() error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		return currentState.close(laneState)
	})
}

// Enter makes an opened scope the active one.
func (handle *Handle) Enter(identifier ID) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		target, found := currentState.scopes[identifier]
		if !found {
			return fmt.Errorf("%w: %s", runtimeerrors.ErrScopeNotFound, identifier)
		}
		laneState.active = append(laneState.active, target)
		return nil
	})
}

// Leave restores the previously active scope.
func (handle *Handle) Leave() error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		if len(laneState.active) == 0 {
			return runtimeerrors.ErrNoActiveScopes
		}
		laneState.active = laneState.active[:len(laneState.active)-1]
		return nil
	})
}

// Insert declares a binding in the active scope, shadowing outer bindings.
func (handle *Handle) Insert(name string, value values.Value) error {
	stored := values.Clone(value)
	return handle.apply(func(currentState *state, laneState *lane) error {
		active := laneState.current()
		if active == nil {
			return runtimeerrors.ErrNoOpenScopes
		}
		active.bindings[name] = stored
		return nil
	})
}

// Update overwrites the nearest existing binding.
func (handle *Handle) Update(name string, value values.Value) error {
	stored := values.Clone(value)
	return handle.apply(func(currentState *state, laneState *lane) error {
		owner, found := laneState.find(name)
		if !found {
			return fmt.Errorf("%w: %s", runtimeerrors.ErrVariableNotFound, name)
		}
		owner.bindings[name] = stored
		return nil
	})
}

// Lookup returns a copy of the nearest binding.
func (handle *Handle) Lookup(name string) (values.Value, bool, error) {
	result := handle.withLane(func(currentState *state, laneState *lane) response {
		owner, found := laneState.find(name)
		if !found {
			return response{}
		}
		return response{value: values.Clone(owner.bindings[name]), found: true}
	})
	return result.value, result.found, result.err
}

// OpenLoop pushes a loop marker.
func (handle *Handle) OpenLoop(identifier ID) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		if currentState.loopOpen(identifier) {
			return fmt.Errorf("%w: %s", runtimeerrors.ErrLoopAlreadyExist, identifier)
		}
		laneState.loops = append(laneState.loops, identifier)
		return nil
	})
}

// CloseLoop pops the innermost loop marker and clears its break flag.
func (handle *Handle) CloseLoop() error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		if len(laneState.loops) == 0 {
			return runtimeerrors.ErrNoOpenLoopsToClose
		}
		closed := laneState.loops[len(laneState.loops)-1]
		laneState.loops = laneState.loops[:len(laneState.loops)-1]
		delete(currentState.broken, closed)
		return nil
	})
}

// SetBreak marks the innermost loop as broken.
func (handle *Handle) SetBreak() error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		if len(laneState.loops) == 0 {
			return runtimeerrors.ErrNoOpenLoopsToBreak
		}
		innermost := laneState.loops[len(laneState.loops)-1]
		if _, broken := currentState.broken[innermost]; broken {
			return fmt.Errorf("%w: %s", runtimeerrors.ErrBreakSignalAlreadyExist, innermost)
		}
		currentState.broken[innermost] = struct{}{}
		return nil
	})
}

// IsLoopStopped reports whether the innermost loop is broken or the innermost
// return context already holds a value.
func (handle *Handle) IsLoopStopped() (bool, error) {
	result := handle.withLane(func(currentState *state, laneState *lane) response {
		return response{found: currentState.isLoopStopped(laneState)}
	})
	return result.found, result.err
}

// OpenReturnContext pushes a return boundary.
func (handle *Handle) OpenReturnContext(identifier ID) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		if currentState.returnOpen(identifier) {
			return fmt.Errorf("%w: %s", runtimeerrors.ErrReturnContextAlreadyExist, identifier)
		}
		laneState.returns = append(laneState.returns, identifier)
		return nil
	})
}

// CloseReturnContext pops the innermost return boundary, discarding its pending value.
func (handle *Handle) CloseReturnContext() error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		if len(laneState.returns) == 0 {
			return runtimeerrors.ErrNoOpenReturnContexts
		}
		closed := laneState.returns[len(laneState.returns)-1]
		laneState.returns = laneState.returns[:len(laneState.returns)-1]
		delete(currentState.pending, closed)
		return nil
	})
}

// SetReturnValue stores the innermost return context's value.
func (handle *Handle) SetReturnValue(value values.Value) error {
	stored := values.Clone(value)
	return handle.apply(func(currentState *state, laneState *lane) error {
		if len(laneState.returns) == 0 {
			return runtimeerrors.ErrNoOpenReturnContexts
		}
		innermost := laneState.returns[len(laneState.returns)-1]
		if _, exists := currentState.pending[innermost]; exists {
			return fmt.Errorf("%w: %s", runtimeerrors.ErrReturnValueAlreadyExist, innermost)
		}
		currentState.pending[innermost] = stored
		return nil
	})
}

// WithdrawReturnValue removes and returns the pending value of a return context.
func (handle *Handle) WithdrawReturnValue(identifier ID) (values.Value, bool, error) {
	result := handle.withLane(func(currentState *state, laneState *lane) response {
		value, exists := currentState.pending[identifier]
		if !exists {
			return response{}
		}
		delete(currentState.pending, identifier)
		return response{value: value, found: true}
	})
	return result.value, result.found, result.err
}

// GetCwd returns the working directory of the active scope chain.
func (handle *Handle) GetCwd() (string, error) {
	result := handle.withLane(func(currentState *state, laneState *lane) response {
		return response{text: currentState.cwd(laneState)}
	})
	return result.text, result.err
}

// SetCwd sets the working directory of the active scope.
func (handle *Handle) SetCwd(path string) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		active := laneState.current()
		if active == nil {
			return runtimeerrors.ErrNoOpenScopes
		}
		active.cwd = path
		return nil
	})
}

// SetParentValue stores the output of the previous pipeline stage for token.
func (handle *Handle) SetParentValue(token PipelineToken, value values.Value) error {
	stored := values.Clone(value)
	return handle.apply(func(currentState *state, laneState *lane) error {
		if _, exists := currentState.parents[token]; exists {
			return fmt.Errorf("%w: %d", runtimeerrors.ErrParentValueAlreadyExist, token)
		}
		currentState.parents[token] = stored
		return nil
	})
}

// WithdrawParentValue removes and returns the parent value stored for token.
func (handle *Handle) WithdrawParentValue(token PipelineToken) (values.Value, error) {
	result := handle.withLane(func(currentState *state, laneState *lane) response {
		value, exists := currentState.parents[token]
		if !exists {
			return response{err: fmt.Errorf("%w: %d", runtimeerrors.ErrParentValueNotFound, token)}
		}
		delete(currentState.parents, token)
		return response{value: value, found: true}
	})
	return result.value, result.err
}

// DropParentValue discards any parent value stored for token.
func (handle *Handle) DropParentValue(token PipelineToken) error {
	return handle.apply(func(currentState *state, laneState *lane) error {
		delete(currentState.parents, token)
		return nil
	})
}
