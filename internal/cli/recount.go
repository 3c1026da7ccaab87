package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RecountOptions holds flags for the recount command.
type RecountOptions struct {
	*RootOptions
	All        bool
	Invalidate bool
}

type recountEntry struct {
	Post          string `json:"post"`
	ReactionCount int64  `json:"reactionCount"`
}

// NewRecountCommand creates the recount command.
func NewRecountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recount [post-id]",
		Short: "Rebuild post counts from the reaction records",
		Long: `Recount a post (or every post with --all) from its reaction records and
overwrite the stored count. Drift between the two is logged.

With --invalidate the cached redis counters are dropped first, so they are
rebuilt from the records even when they happen to agree.

Example:
  engage recount p1
  engage recount --all
  engage recount --all --invalidate`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecount(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "recount every post")
	cmd.Flags().BoolVar(&opts.Invalidate, "invalidate", false, "drop cached redis counters before recounting")

	return cmd
}

func runRecount(opts *RecountOptions, args []string, cmd *cobra.Command) error {
	if opts.All == (len(args) == 1) {
		return NewExitError(ExitCommandError, "give exactly one of a post ID or --all")
	}

	return withBackend(opts.RootOptions, cmd, func(ctx context.Context, b *backend) error {
		out := opts.formatter(cmd)
		if opts.Invalidate && b.cache == nil {
			return NewExitError(ExitCommandError, "--invalidate requires the redis counter driver")
		}

		posts := args
		if opts.All {
			ids, err := b.posts.ListPostIDs(ctx)
			if err != nil {
				return out.ReactionError("failed to list posts", err)
			}
			posts = ids
		}

		results := make([]recountEntry, 0, len(posts))
		for _, id := range posts {
			if opts.Invalidate {
				if err := b.cache.Invalidate(ctx, id); err != nil {
					return out.ReactionError("invalidate failed", err)
				}
				out.VerboseLog("invalidated cached counter for %s", id)
			}
			n, err := b.svc.Recount(ctx, id)
			if err != nil {
				return out.ReactionError("recount failed", err)
			}
			out.VerboseLog("recounted %s: %d", id, n)
			results = append(results, recountEntry{Post: id, ReactionCount: n})
		}

		return out.Success(results, func(w io.Writer) {
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\n", r.Post, r.ReactionCount)
			}
		})
	})
}
