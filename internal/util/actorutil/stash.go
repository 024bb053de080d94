package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash keeps messages an actor cannot handle in its current behavior,
// together with their senders, until it is ready for them again.
type Stash struct {
	elems []stashElem
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	s.elems = append(s.elems, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

// UnstashAll re-sends every stashed message to self, oldest first.
func (s *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range s.elems {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	s.elems = nil
}

func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.elems) == 0 {
		return
	}
	first := s.elems[0]
	ctx.RequestWithCustomSender(ctx.Self(), first.msg, first.sender)
	s.elems = s.elems[1:]
}
