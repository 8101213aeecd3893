package orch

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
)

func (o *Orchestrator) callInvite(ctx context.Context, c *Client, cmd core.CallInvite) error {
	env, err := o.Calls.Invite(ctx, c.invites, c.UserID, cmd)
	if err != nil {
		return err
	}
	return o.Bus.Publish(ctx, env)
}

func (o *Orchestrator) callRespond(ctx context.Context, c *Client, cmd core.CallResponse) error {
	env, err := o.Calls.Respond(ctx, c.UserID, cmd)
	if err != nil {
		return err
	}
	return o.Bus.Publish(ctx, env)
}
