package cli

import (
	"context"
	"fmt"

	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/pipeline"
)

// newOp builds, and submits to the Acceptance Pipeline, one op of kind
// originating from this node's own identity. It is the CLI's single
// write path: every subcommand that mutates a space goes through it.
func (a *App) newOp(ctx context.Context, spaceID, channelID, threadID opmodel.Hash32, kind opmodel.Kind, payload interface{}) (opmodel.Op, pipeline.Result, error) {
	body, err := opmodel.EncodePayload(payload)
	if err != nil {
		return opmodel.Op{}, pipeline.Result{}, fmt.Errorf("cli: encode payload: %w", err)
	}

	epoch := a.Pipeline.CurrentEpochFor(spaceID, channelID)

	op := opmodel.Op{
		SpaceID:   spaceID,
		ChannelID: channelID,
		ThreadID:  threadID,
		Kind:      kind,
		Payload:   body,
		Author:    opmodel.Hash32(a.Identity.ID()),
		HLC:       a.Clock.Tick(),
		Epoch:     epoch,
	}
	op, err = opmodel.Finalize(op, a.Identity.Private)
	if err != nil {
		return opmodel.Op{}, pipeline.Result{}, fmt.Errorf("cli: finalize op: %w", err)
	}

	res := a.Pipeline.Admit(ctx, op)
	if res.Verdict != pipeline.Accepted {
		return op, res, fmt.Errorf("cli: op %s: %s: %v", op.OpID, res.Verdict, res.Err)
	}
	if err := a.persistGroup(ctx, op); err != nil {
		return op, res, fmt.Errorf("cli: persist op: %w", err)
	}
	return op, res, nil
}
