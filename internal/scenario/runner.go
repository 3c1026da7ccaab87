package scenario

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/engage/internal/reaction"
	"github.com/roach88/engage/internal/reconcile"
	"github.com/roach88/engage/internal/store"
	"github.com/roach88/engage/internal/testutil"
)

// scenarioEpoch is the fixed start of the clock used by every run.
var scenarioEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TraceStep records one executed step.
type TraceStep struct {
	Step     int    `json:"step"`
	Op       string `json:"op"`
	Post     string `json:"post"`
	User     string `json:"user,omitempty"`
	Reaction string `json:"reaction,omitempty"`
	Previous string `json:"previous,omitempty"`
	Count    int64  `json:"count"`
	Changed  bool   `json:"changed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FinalPost is a post's state after the last step.
type FinalPost struct {
	Count     int64             `json:"count"`
	Reactions map[string]string `json:"reactions"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	Trace  []TraceStep          `json:"trace"`
	Final  map[string]FinalPost `json:"final"`
	Errors []string             `json:"errors,omitempty"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	dbPath string
}

// WithLogger sets the logger passed to the store and service.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithDatabase runs against a SQLite file instead of an in-memory database.
func WithDatabase(path string) Option {
	return func(c *runConfig) {
		c.dbPath = path
	}
}

// Run executes sc on a fresh store and returns its trace. Failed expectations
// are reported in Result.Errors; the returned error is for infrastructure
// failures only.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dbPath: ":memory:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	clock := testutil.NewStepClock(scenarioEpoch, time.Second)
	st, err := store.Open(cfg.dbPath, store.WithLogger(cfg.logger), store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	defer st.Close()

	svc := reconcile.New(st, st, st,
		reconcile.WithLogger(cfg.logger),
		reconcile.WithIDGenerator(testutil.NewSequenceIDGenerator(sc.Name)),
	)

	for _, id := range sc.Posts {
		if _, err := st.CreatePost(ctx, id); err != nil {
			return nil, fmt.Errorf("create post %s: %w", id, err)
		}
	}

	result := &Result{Pass: true, Trace: []TraceStep{}, Final: map[string]FinalPost{}}
	for i, step := range sc.Steps {
		trace, err := runStep(ctx, st, svc, sc.Posts[0], i+1, step)
		if err != nil {
			return nil, err
		}
		result.Trace = append(result.Trace, trace)
		checkStep(ctx, st, result, step, trace)
	}

	for _, id := range sc.Posts {
		final, err := finalState(ctx, st, id)
		if err != nil {
			return nil, err
		}
		result.Final[id] = final
	}
	checkFinal(result, sc.Expect)

	return result, nil
}

func runStep(ctx context.Context, st *store.Store, svc *reconcile.Service, defaultPost string, n int, step Step) (TraceStep, error) {
	post := step.Post
	if post == "" {
		post = defaultPost
	}
	trace := TraceStep{Step: n, Op: step.op(), Post: post, User: step.User}

	var err error
	switch trace.Op {
	case OpReact, OpRemove:
		var next *reaction.Reaction
		if trace.Op == OpReact {
			next = &reaction.Reaction{Kind: reaction.Kind(step.React), Label: step.Label}
			trace.Reaction = step.React
		}
		var res reconcile.Result
		res, err = svc.React(ctx, post, step.User, next)
		if err == nil {
			trace.Count = res.ReactionCount
			trace.Changed = res.Changed
			if res.Previous != nil {
				trace.Previous = string(res.Previous.Kind)
			}
		}

	case OpRecount:
		trace.Count, err = svc.Recount(ctx, post)

	case OpSetCount:
		// Bypasses the service on purpose: this is how drift is injected.
		err = st.Reset(ctx, post, reaction.Tally{Total: *step.SetCount})
		trace.Count = *step.SetCount
	}

	if err != nil {
		code := reaction.CodeOf(err)
		if code == "" {
			return TraceStep{}, fmt.Errorf("step %d: %w", n, err)
		}
		trace.Error = string(code)
	}
	return trace, nil
}

func checkStep(ctx context.Context, st *store.Store, result *Result, step Step, trace TraceStep) {
	if trace.Error != step.ExpectError {
		result.addError("step %d: expected error %q, got %q", trace.Step, step.ExpectError, trace.Error)
	}
	if step.ExpectCount != nil && *step.ExpectCount != trace.Count {
		result.addError("step %d: expected count %d, got %d", trace.Step, *step.ExpectCount, trace.Count)
	}

	if trace.Error != "" || (trace.Op != OpReact && trace.Op != OpRemove) {
		return
	}
	record, err := st.Reactions(ctx, trace.Post)
	if err != nil {
		result.addError("step %d: read reactions: %v", trace.Step, err)
		return
	}
	cached, err := st.Count(ctx, trace.Post)
	if err != nil {
		result.addError("step %d: read count: %v", trace.Step, err)
		return
	}
	if !record.Tally().Equal(cached) {
		result.addError("step %d: counter %d disagrees with %d records", trace.Step, cached.Total, len(record))
	}
}

func finalState(ctx context.Context, st *store.Store, postID string) (FinalPost, error) {
	record, err := st.Reactions(ctx, postID)
	if err != nil {
		return FinalPost{}, fmt.Errorf("final reactions %s: %w", postID, err)
	}
	post, err := st.ReadPost(ctx, postID)
	if err != nil {
		return FinalPost{}, fmt.Errorf("final post %s: %w", postID, err)
	}
	final := FinalPost{Count: post.ReactionCount, Reactions: make(map[string]string, len(record))}
	for user, r := range record {
		final.Reactions[user] = string(r.Kind)
	}
	return final, nil
}

func checkFinal(result *Result, expect map[string]PostExpectation) {
	posts := make([]string, 0, len(expect))
	for id := range expect {
		posts = append(posts, id)
	}
	sort.Strings(posts)

	for _, id := range posts {
		want := expect[id]
		got, ok := result.Final[id]
		if !ok {
			result.addError("expect: post %s was not declared", id)
			continue
		}
		if got.Count != want.Count {
			result.addError("expect %s: count %d, got %d", id, want.Count, got.Count)
		}
		if len(got.Reactions) != len(want.Reactions) {
			result.addError("expect %s: %d reactions, got %d", id, len(want.Reactions), len(got.Reactions))
		}
		for user, kind := range want.Reactions {
			if got.Reactions[user] != kind {
				result.addError("expect %s: user %s reaction %q, got %q", id, user, kind, got.Reactions[user])
			}
		}
	}
}
