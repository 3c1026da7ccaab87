package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/reaction"
)

// NewPostCommand creates the post command group.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create and inspect posts",
	}
	cmd.AddCommand(newPostCreateCommand(rootOpts))
	cmd.AddCommand(newPostShowCommand(rootOpts))
	cmd.AddCommand(newPostListCommand(rootOpts))
	cmd.AddCommand(newPostCommentCommand(rootOpts))
	return cmd
}

type postCreateResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

func newPostCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <post-id>...",
		Short: "Create posts with zero counts",
		Long: `Create one or more posts. Existing posts are left untouched.

Example:
  engage post create p1 p2`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, b *backend) error {
				out := rootOpts.formatter(cmd)
				results := make([]postCreateResult, 0, len(args))
				for _, arg := range args {
					id, err := reaction.NormalizeID("post id", arg)
					if err != nil {
						return out.ReactionError("failed to create post", err)
					}
					created, err := b.posts.CreatePost(ctx, id)
					if err != nil {
						return out.ReactionError("failed to create post", err)
					}
					out.VerboseLog("post %s created=%t", id, created)
					results = append(results, postCreateResult{ID: id, Created: created})
				}
				return out.Success(results, func(w io.Writer) {
					for _, r := range results {
						if r.Created {
							fmt.Fprintf(w, "created %s\n", r.ID)
						} else {
							fmt.Fprintf(w, "exists  %s\n", r.ID)
						}
					}
				})
			})
		},
	}
}

func newPostShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <post-id>",
		Short:         "Show a post's stored counts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, b *backend) error {
				out := rootOpts.formatter(cmd)
				p, err := b.posts.ReadPost(ctx, args[0])
				if err != nil {
					return out.ReactionError("failed to read post", err)
				}
				return out.Success(p, func(w io.Writer) {
					fmt.Fprintf(w, "post:      %s\n", p.ID)
					fmt.Fprintf(w, "reactions: %d\n", p.ReactionCount)
					fmt.Fprintf(w, "comments:  %d\n", p.CommentCount)
					fmt.Fprintf(w, "updated:   %s\n", p.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"))
				})
			})
		},
	}
}

func newPostListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List post IDs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, b *backend) error {
				out := rootOpts.formatter(cmd)
				ids, err := b.posts.ListPostIDs(ctx)
				if err != nil {
					return out.ReactionError("failed to list posts", err)
				}
				return out.Success(ids, func(w io.Writer) {
					for _, id := range ids {
						fmt.Fprintln(w, id)
					}
				})
			})
		},
	}
}

type commentResult struct {
	ID           string `json:"id"`
	CommentCount int64  `json:"commentCount"`
}

func newPostCommentCommand(rootOpts *RootOptions) *cobra.Command {
	var delta int64

	cmd := &cobra.Command{
		Use:   "comment <post-id>",
		Short: "Apply a delta to a post's comment count",
		Long: `Apply a signed delta to a post's comment count. The count never drops
below zero.

Example:
  engage post comment p1 --delta 1
  engage post comment p1 --delta -1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, b *backend) error {
				out := rootOpts.formatter(cmd)
				n, err := b.posts.ApplyCommentDelta(ctx, args[0], delta)
				if err != nil {
					return out.ReactionError("failed to update comment count", err)
				}
				res := commentResult{ID: args[0], CommentCount: n}
				return out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s comments: %d\n", res.ID, res.CommentCount)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&delta, "delta", 1, "signed change to apply")
	return cmd
}
