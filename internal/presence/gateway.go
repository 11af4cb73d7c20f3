package presence

import "context"

// Gateway answers questions about the shared presence channel. It is the
// read side of the chat-platform bridge: who is in the channel right now,
// who belongs to the community at all, and what a user ID is called.
//
// Present is used by the recovery reconciler and the weekly rollover.
// Members feeds the zero-activity failure rule; when it fails the weekly
// report degrades rather than aborting.
type Gateway interface {
	Present(ctx context.Context) ([]string, error)
	Members(ctx context.Context) ([]string, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}
