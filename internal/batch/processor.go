// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package batch fans a batch request out into bounded-parallel unit
// operations against the vector operations manager and aggregates partial
// failures. There is no cross-operation transaction and never a rollback;
// each unit operation succeeds or fails independently.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vgate-dev/vgate/internal/vectorops"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Policy decides how the batch reacts to a failing unit operation.
type Policy string

const (
	// PolicyFailFast cancels not-yet-started operations on the first
	// failure. Already-started operations still complete, since storage
	// writes are not safely cancellable mid-flight.
	PolicyFailFast Policy = "fail_fast"
	// PolicyCollectErrors runs every operation to completion regardless of
	// individual failures.
	PolicyCollectErrors Policy = "collect_errors"
)

// OpKind is the unit operation type.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is one unit of work inside a batch.
type Operation struct {
	Kind       OpKind
	Collection string
	ID         string
	Record     vector.Record
}

// Job is one incoming batch request. It lives for the duration of a single
// Run call and is never persisted.
type Job struct {
	Operations     []Operation
	MaxParallelism int
	Policy         Policy
}

// OpStatus reports the outcome of one unit operation. Index correlates it
// with the original operation order regardless of completion order.
type OpStatus struct {
	Index    int
	RecordID string
	Err      error
}

// Result aggregates a finished batch. Mixed status is not a hard error.
type Result struct {
	PerOp     []OpStatus
	Succeeded int
	Failed    int
}

// Processor executes batch jobs.
type Processor struct {
	ops *vectorops.Manager
}

// NewProcessor wires a Processor.
func NewProcessor(ops *vectorops.Manager) (*Processor, error) {
	if ops == nil {
		return nil, vgerr.New(vgerr.CodeConfigValidateInvalidValue,
			"batch processor requires a vectorops manager")
	}
	return &Processor{ops: ops}, nil
}

// Run executes the job with at most MaxParallelism operations in flight;
// excess operations queue. The result array always has one entry per
// operation, index-correlated with the input.
func (p *Processor) Run(ctx context.Context, job Job) (Result, error) {
	if len(job.Operations) == 0 {
		return Result{}, vgerr.New(vgerr.CodeBatchInvalidInput,
			"batch requires at least one operation")
	}
	if job.MaxParallelism < 0 {
		return Result{}, vgerr.Errorf(vgerr.CodeBatchInvalidInput,
			"batch max parallelism must not be negative, got %d", job.MaxParallelism)
	}
	switch job.Policy {
	case PolicyFailFast, PolicyCollectErrors:
	case "":
		job.Policy = PolicyCollectErrors
	default:
		return Result{}, vgerr.Errorf(vgerr.CodeBatchInvalidInput,
			"unknown partial failure policy %q", job.Policy)
	}

	parallelism := job.MaxParallelism
	if parallelism == 0 {
		parallelism = 8
	}

	statuses := make([]OpStatus, len(job.Operations))

	// startCtx only gates starting new operations; running operations keep
	// the caller's context so a fail-fast trip does not abort them.
	startCtx, cancelStarts := context.WithCancel(ctx)
	defer cancelStarts()

	sem := semaphore.NewWeighted(int64(parallelism))
	var wg sync.WaitGroup

	for i, op := range job.Operations {
		if err := sem.Acquire(startCtx, 1); err != nil {
			statuses[i] = skipped(i, op)
			continue
		}
		if startCtx.Err() != nil {
			sem.Release(1)
			statuses[i] = skipped(i, op)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			recordID, err := p.execute(ctx, op)
			statuses[i] = OpStatus{Index: i, RecordID: recordID, Err: err}
			if err != nil && job.Policy == PolicyFailFast {
				cancelStarts()
			}
		}()
	}
	wg.Wait()

	result := Result{PerOp: statuses}
	for _, st := range statuses {
		if st.Err == nil {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func (p *Processor) execute(ctx context.Context, op Operation) (string, error) {
	switch op.Kind {
	case OpInsert:
		rec, err := p.ops.Insert(ctx, op.Record)
		return rec.ID, err
	case OpUpdate:
		return op.ID, p.ops.Update(ctx, op.ID, op.Record)
	case OpDelete:
		return op.ID, p.ops.Delete(ctx, op.Collection, op.ID)
	default:
		return "", vgerr.Errorf(vgerr.CodeBatchInvalidInput,
			"unknown batch operation kind %q", op.Kind)
	}
}

func skipped(i int, op Operation) OpStatus {
	return OpStatus{
		Index:    i,
		RecordID: op.ID,
		Err: vgerr.New(vgerr.CodeBatchOpSkipped,
			"operation not started: batch aborted", vgerr.FieldOperation(string(op.Kind))),
	}
}
