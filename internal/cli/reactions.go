package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/reaction"
)

type reactionEntry struct {
	User  string        `json:"user"`
	Kind  reaction.Kind `json:"kind"`
	Label string        `json:"label"`
}

type reactionsResult struct {
	Post          string                  `json:"post"`
	ReactionCount int64                   `json:"reactionCount"`
	Kinds         map[reaction.Kind]int64 `json:"kinds"`
	Reactions     []reactionEntry         `json:"reactions"`
}

// NewReactionsCommand creates the reactions command.
func NewReactionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reactions <post-id>",
		Short: "List a post's reactions and its count",
		Long: `List every active reaction on a post, ordered by user, together with the
post's aggregate count.

Example:
  engage reactions p1
  engage reactions p1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, b *backend) error {
				out := rootOpts.formatter(cmd)

				record, err := b.svc.Reactions(ctx, args[0])
				if err != nil {
					return out.ReactionError("failed to read reactions", err)
				}
				tally, err := b.svc.Count(ctx, args[0])
				if err != nil {
					return out.ReactionError("failed to read count", err)
				}

				res := reactionsResult{
					Post:          args[0],
					ReactionCount: tally.Total,
					Kinds:         tally.Kinds,
					Reactions:     make([]reactionEntry, 0, len(record)),
				}
				for _, user := range record.Users() {
					r := record[user]
					res.Reactions = append(res.Reactions, reactionEntry{User: user, Kind: r.Kind, Label: r.Label})
				}

				return out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "post %s: %d reaction(s)\n", res.Post, res.ReactionCount)
					writeKinds(w, res.Kinds)
					for _, e := range res.Reactions {
						fmt.Fprintf(w, "%s\t%s\t%s\n", e.User, e.Kind, e.Label)
					}
				})
			})
		},
	}
}
