package rebuild

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Start launches the rebuild workflow. started is false when a rebuild is
// already running. With wait set it blocks for the result.
func Start(ctx context.Context, tc temporalsdkclient.Client, taskQueue string, wait bool) (runID string, started bool, res *Result, err error) {
	if tc == nil {
		return "", false, nil, fmt.Errorf("temporal client is not configured")
	}
	run, err := tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                                       WorkflowID,
		TaskQueue:                                taskQueue,
		WorkflowIDConflictPolicy:                 enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, WorkflowName)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return already.RunId, false, nil, nil
		}
		return "", false, nil, err
	}
	if !wait {
		return run.GetRunID(), true, nil, nil
	}
	var out Result
	if err := run.Get(ctx, &out); err != nil {
		return run.GetRunID(), true, nil, err
	}
	return run.GetRunID(), true, &out, nil
}
