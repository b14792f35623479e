package store

import (
	"fmt"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/values"
)

const rootLaneConstant uint64 = 0

type scope struct {
	id       ID
	parent   *scope
	bindings map[string]values.Value
	cwd      string
}

// lane holds the stacks of one evaluation branch. Branches evaluated concurrently
// each own a lane so their loop and return bookkeeping never interleaves.
type lane struct {
	opened  []*scope
	active  []*scope
	loops   []ID
	returns []ID
}

type state struct {
	rootDirectory string
	scopes        map[ID]*scope
	lanes         map[uint64]*lane
	nextLane      uint64
	broken        map[ID]struct{}
	pending       map[ID]values.Value
	parents       map[PipelineToken]values.Value
}

func newState(rootDirectory string) *state {
	return &state{
		rootDirectory: rootDirectory,
		scopes:        make(map[ID]*scope),
		lanes:         map[uint64]*lane{rootLaneConstant: {}},
		nextLane:      rootLaneConstant + 1,
		broken:        make(map[ID]struct{}),
		pending:       make(map[ID]values.Value),
		parents:       make(map[PipelineToken]values.Value),
	}
}

func (currentState *state) lane(identifier uint64) (*lane, error) {
	laneState, found := currentState.lanes[identifier]
	if !found {
		return nil, fmt.Errorf("%w: lane %d released", runtimeerrors.ErrStoreDisconnected, identifier)
	}
	return laneState, nil
}

func (laneState *lane) current() *scope {
	if len(laneState.active) == 0 {
		return nil
	}
	return laneState.active[len(laneState.active)-1]
}

func (currentState *state) open(laneState *lane, identifier ID, parent *scope) error {
	if _, exists := currentState.scopes[identifier]; exists {
		return fmt.Errorf("%w: %s", runtimeerrors.ErrScopeAlreadyExist, identifier)
	}
	created := &scope{id: identifier, parent: parent, bindings: make(map[string]values.Value)}
	currentState.scopes[identifier] = created
	laneState.opened = append(laneState.opened, created)
	return nil
}

func (currentState *state) close(laneState *lane) error {
	if len(laneState.opened) == 0 {
		return runtimeerrors.ErrNoOpenScopes
	}
	closed := laneState.opened[len(laneState.opened)-1]
	laneState.opened = laneState.opened[:len(laneState.opened)-1]
	delete(currentState.scopes, closed.id)
	return nil
}

func (laneState *lane) find(name string) (*scope, bool) {
	for candidate := laneState.current(); candidate != nil; candidate = candidate.parent {
		if _, found := candidate.bindings[name]; found {
			return candidate, true
		}
	}
	return nil, false
}

func (currentState *state) cwd(laneState *lane) string {
	for candidate := laneState.current(); candidate != nil; candidate = candidate.parent {
		if len(candidate.cwd) > 0 {
			return candidate.cwd
		}
	}
	return currentState.rootDirectory
}

func (currentState *state) isLoopStopped(laneState *lane) bool {
	if len(laneState.loops) > 0 {
		if _, broken := currentState.broken[laneState.loops[len(laneState.loops)-1]]; broken {
			return true
		}
	}
	if len(laneState.returns) > 0 {
		if _, pending := currentState.pending[laneState.returns[len(laneState.returns)-1]]; pending {
			return true
		}
	}
	return false
}

func containsID(identifiers []ID, identifier ID) bool {
	for _, candidate := range identifiers {
		if candidate == identifier {
			return true
		}
	}
	return false
}

func (currentState *state) loopOpen(identifier ID) bool {
	for _, laneState := range currentState.lanes {
		if containsID(laneState.loops, identifier) {
			return true
		}
	}
	return false
}

func (currentState *state) returnOpen(identifier ID) bool {
	for _, laneState := range currentState.lanes {
		if containsID(laneState.returns, identifier) {
			return true
		}
	}
	return false
}
