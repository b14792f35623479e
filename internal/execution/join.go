package execution

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tyemirov/taskscript/internal/breaker"
	"github.com/tyemirov/taskscript/internal/store"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const laneReleaseFailedMessageConstant = "join lane release failed"

// evaluateJoin runs every reference on its own store lane and returns their
// results in declaration order. The first failure cancels the remaining branches.
func (evaluator *Evaluator) evaluateJoin(executionContext context.Context, join *syntax.Join, frame Frame) (result values.Value, joinError error) {
	group, groupContext := errgroup.WithContext(frame.Signal.Context())
	joinSignal := breaker.NewSignal(groupContext)
	defer joinSignal.Cancel()

	lanes := make([]*store.Handle, 0, len(join.References))
	defer func() {
		if releaseError := evaluator.releaseLanes(join, lanes); releaseError != nil && joinError == nil {
			result, joinError = nil, releaseError
		}
	}()
	for range join.References {
		lane, forkError := frame.Scope.Fork()
		if forkError != nil {
			return nil, evaluator.storeFailure(join, forkError)
		}
		lanes = append(lanes, lane)
	}

	results := make(values.Vec, len(join.References))
	for index, reference := range join.References {
		branchFrame := frame
		branchFrame.Scope = lanes[index]
		branchFrame.Signal = joinSignal
		group.Go(func() error {
			value, evaluationError := evaluator.Evaluate(executionContext, reference, branchFrame)
			if evaluationError != nil {
				return evaluationError
			}
			results[index] = value
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return nil, waitError
	}
	for index := range results {
		if results[index] == nil {
			results[index] = values.Empty{}
		}
	}
	return results, nil
}

// releaseLanes drops every forked lane and reports the first failure.
func (evaluator *Evaluator) releaseLanes(join *syntax.Join, lanes []*store.Handle) error {
	var firstError error
	for _, lane := range lanes {
		releaseError := lane.Release()
		if releaseError == nil {
			continue
		}
		evaluator.logger.Debug(laneReleaseFailedMessageConstant, zap.String(locationFieldConstant, evaluator.locate(join)), zap.Error(releaseError))
		if firstError == nil {
			firstError = evaluator.storeFailure(join, releaseError)
		}
	}
	return firstError
}
