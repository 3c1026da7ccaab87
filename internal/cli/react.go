package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/reaction"
)

// ReactOptions holds flags for the react command.
type ReactOptions struct {
	*RootOptions
	Label  string
	Remove bool
}

// NewReactCommand creates the react command.
func NewReactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "react <post-id> <user-id> [kind]",
		Short: "Set or remove a user's reaction on a post",
		Long: `Set a user's reaction on a post, or remove it with --remove.

The record and the post's count are updated together. Repeating the same
call leaves the count unchanged.

Example:
  engage react p1 u1 like
  engage react p1 u1 funny --label "haha"
  engage react p1 u1 --remove`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReact(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Label, "label", "", "display label (defaults to the catalog label)")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "remove the user's reaction")

	return cmd
}

func runReact(opts *ReactOptions, args []string, cmd *cobra.Command) error {
	var next *reaction.Reaction
	switch {
	case opts.Remove && len(args) == 3:
		return NewExitError(ExitCommandError, "--remove takes no kind argument")
	case !opts.Remove && len(args) < 3:
		return NewExitError(ExitCommandError, "kind is required unless --remove is set")
	case !opts.Remove:
		next = &reaction.Reaction{Kind: reaction.Kind(args[2]), Label: opts.Label}
	}

	return withBackend(opts.RootOptions, cmd, func(ctx context.Context, b *backend) error {
		out := opts.formatter(cmd)
		res, err := b.svc.React(ctx, args[0], args[1], next)
		if err != nil {
			return out.ReactionError("reaction rejected", err)
		}
		return out.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "count: %d\n", res.ReactionCount)
			if res.Previous != nil {
				fmt.Fprintf(w, "previous: %s (%s)\n", res.Previous.Kind, res.Previous.Label)
			}
			if !res.Changed {
				fmt.Fprintln(w, "unchanged")
			}
			writeKinds(w, res.Kinds)
		})
	})
}

// writeKinds prints a histogram in kind order.
func writeKinds(w io.Writer, kinds map[reaction.Kind]int64) {
	keys := make([]string, 0, len(kinds))
	for k, n := range kinds {
		if n > 0 {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-10s %d\n", k, kinds[reaction.Kind(k)])
	}
}
