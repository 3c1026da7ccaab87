package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/reaction"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <post-id>",
		Short: "Show the reaction audit log of a post",
		Long: `Show every reaction change recorded for a post, oldest first.

Only the sqlite store keeps an audit log.

Example:
  engage history p1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, b *backend) error {
				out := rootOpts.formatter(cmd)
				if b.sqlite == nil {
					return NewExitError(ExitCommandError, "history requires the sqlite store driver")
				}

				postID, err := reaction.NormalizeID("post id", args[0])
				if err != nil {
					return out.ReactionError("invalid post", err)
				}
				events, err := b.sqlite.ReadEvents(ctx, postID)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read history", err)
				}

				return out.Success(events, func(w io.Writer) {
					for _, e := range events {
						fmt.Fprintf(w, "%d\t%s\t%s\t%s -> %s\t%s\n",
							e.Seq,
							e.RecordedAt.Format("2006-01-02T15:04:05.000Z07:00"),
							e.UserID,
							kindOrNone(e.PrevKind),
							kindOrNone(e.NextKind),
							e.OpID,
						)
					}
				})
			})
		},
	}
}

func kindOrNone(k reaction.Kind) string {
	if k == "" {
		return "-"
	}
	return string(k)
}
