// Package actor implements the keyed session and player actors. Each key owns
// one goroutine that drains a mailbox of typed messages, so operations for the
// same key never interleave while different keys run fully in parallel.
package actor

import "context"

// ask delivers a message to an actor mailbox and waits for its reply. Reply
// channels are buffered so an abandoned ask never wedges the actor loop.
// Callers must instantiate M with the mailbox's interface type; inference from
// the concrete message would not unify with the channel's element type.
func ask[M any, T any](ctx context.Context, inbox chan<- M, msg M, reply <-chan T) (T, error) {
	var zero T
	select {
	case inbox <- msg:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
