package node

import (
	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Unique marks an argument for positional distribution: element i goes to
// group member i. Any non-Unique argument is broadcast unchanged to every
// member.
type Unique []interface{}

// Group is a proxy over several nodes for operations they must execute in
// lock-step.
type Group struct {
	pipe    *bus.Pipeline
	members []*Node
	logger  *logrus.Entry
}

// NewGroup builds a group over the given members.
func NewGroup(pipe *bus.Pipeline, logger *logrus.Entry, members ...*Node) (*Group, error) {
	if len(members) == 0 {
		return nil, ErrEmptyGroup
	}
	return &Group{
		pipe:    pipe,
		members: members,
		logger:  logger.WithField("component", "group"),
	}, nil
}

// Members returns the group's nodes in call order.
func (g *Group) Members() []*Node { return g.members }

// Call runs one distributed operation on a port bound by every member.
//
// Arguments are distributed first: Unique values are split positionally,
// everything else is broadcast. When any argument distributed uniquely, one
// shared sync token is attached to every resulting action. The push hook
// then runs for every member before the finalize hook runs for any, so an
// aggregate pulled from the token in finalize covers the whole group. Only
// once every member's outbound values are final are the actions committed
// and cleared, in member order, guaranteeing they transmit back to back.
//
// The returned actions are live: the caller triggers the buffered
// operations with Trigger, or waits on the individual actions.
func (g *Group) Call(
	port byte,
	args wire.Values,
	push func(n *Node, a *bus.Action, tok *bus.SyncToken) error,
	finalize func(n *Node, a *bus.Action, tok *bus.SyncToken) error,
) ([]*bus.Action, error) {

	actions := make([]*bus.Action, len(g.members))
	needToken := false

	for i, n := range g.members {
		a, err := n.NewAction(port)
		if err != nil {
			return nil, err
		}

		for name, v := range args {
			if tuple, ok := v.(Unique); ok {
				if len(tuple) != len(g.members) {
					return nil, ErrArityMismatch
				}
				a.Out[name] = tuple[i]
				needToken = true
				continue
			}
			a.Out[name] = v
		}

		actions[i] = a
	}

	var tok *bus.SyncToken
	if needToken {
		tok = bus.NewSyncToken(len(g.members))
		for _, a := range actions {
			a.Sync = tok
		}
	}

	if push != nil {
		for i, a := range actions {
			if err := push(g.members[i], a, tok); err != nil {
				return nil, err
			}
		}
	}

	if finalize != nil {
		for i, a := range actions {
			if err := finalize(g.members[i], a, tok); err != nil {
				return nil, err
			}
		}
	}

	for _, a := range actions {
		a.Commit()
		a.ClearForRelease()
	}

	return actions, nil
}

// Trigger multicasts an empty packet on the port, firing the buffered
// operations on every peripheral simultaneously. Fire-and-forget; multicast
// packets are never replied to.
func (g *Group) Trigger(port byte) *bus.Action {
	a := g.pipe.NewAction(0, port, nil, nil)
	a.Multicast = true

	g.logger.WithField("port", port).Debug("multicast trigger")
	a.FireAndForget()
	return a
}
