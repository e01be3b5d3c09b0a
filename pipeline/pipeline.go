package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/sparqlgate/audit"
	"github.com/c360/sparqlgate/classify"
	"github.com/c360/sparqlgate/lint"
	"github.com/c360/sparqlgate/metric"
	"github.com/c360/sparqlgate/pkg/cache"
	"github.com/c360/sparqlgate/transport"
)

const (
	// maxAttempts bounds executions per request: the initial attempt
	// plus at most two repairs.
	maxAttempts = 3

	// Timeout budget clamp.
	MinTimeout     = 5 * time.Second
	MaxTimeout     = 60 * time.Second
	DefaultTimeout = 30 * time.Second

	// dryRunCap bounds the probe execution regardless of budget.
	dryRunCap = 15 * time.Second

	// Result size clamp.
	MinLimitCap = 1
	MaxLimitCap = 500

	// rateWaitCap bounds the pause inserted before retrying after a
	// rate-limited attempt.
	rateWaitCap = 16 * time.Second
)

// Executor runs a query against an endpoint. *transport.Client
// satisfies it; tests substitute fakes.
type Executor interface {
	Execute(ctx context.Context, query string, timeout time.Duration) (*transport.Response, error)
}

// Throttler paces requests per endpoint class. *throttle.Throttle
// satisfies it.
type Throttler interface {
	Wait(ctx context.Context, class string) error
	Observe(class string, rateLimited bool)
}

// CachedResult is what successful executions store in the result cache.
type CachedResult struct {
	Vars     []string
	Rows     []map[string]transport.Value
	Warnings []string
}

// Request is one query submission.
type Request struct {
	Query      string
	Timeout    time.Duration // clamped to [MinTimeout, MaxTimeout]; zero means DefaultTimeout
	LimitCap   int           // clamped to [MinLimitCap, MaxLimitCap]; zero means the runner default
	SkipCache  bool
	Entities   []string // grounded entity IDs accompanying the query
	Properties []string // grounded property IDs accompanying the query
}

// Stats reports per-request execution accounting.
type Stats struct {
	ElapsedMs int64 `json:"elapsedMs"`
	Attempts  int   `json:"attempts"`
}

// Result is the terminal outcome of a pipeline run. Exactly one of OK
// or ErrorCode is meaningful: a failed run has empty Rows and a
// populated error triple, a successful run may still carry advisory
// warnings.
type Result struct {
	RequestID      string                       `json:"requestId"`
	OK             bool                         `json:"ok"`
	Vars           []string                     `json:"vars,omitempty"`
	Rows           []map[string]transport.Value `json:"rows"`
	RowCount       int                          `json:"rowCount"`
	ErrorCode      string                       `json:"errorCode,omitempty"`
	ErrorMessage   string                       `json:"errorMessage,omitempty"`
	Hint           string                       `json:"hint,omitempty"`
	RepairsApplied []string                     `json:"repairsApplied"`
	Warnings       []string                     `json:"warnings"`
	FromCache      bool                         `json:"fromCache"`
	Stats          Stats                        `json:"stats"`

	queryHash string
}

// Runner executes requests against one endpoint class.
type Runner struct {
	class     string
	exec      Executor
	throttle  Throttler
	results   cache.Cache[CachedResult]
	metrics   *metric.Metrics
	audit     *audit.Publisher
	log       *slog.Logger
	limitCap  int
	timeout   time.Duration
	grounding bool
	dryRun    bool
	sleep     func(context.Context, time.Duration) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithCache enables result caching.
func WithCache(c cache.Cache[CachedResult]) Option {
	return func(r *Runner) { r.results = c }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithAudit publishes an audit event per completed run.
func WithAudit(p *audit.Publisher) Option {
	return func(r *Runner) { r.audit = p }
}

// WithLogger sets the runner logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithLimitCap overrides the default result size cap.
func WithLimitCap(n int) Option {
	return func(r *Runner) { r.limitCap = clampLimitCap(n) }
}

// WithDefaultTimeout sets the budget used when a request carries none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithGrounding requires queries to reference only pre-grounded
// entity and property IDs.
func WithGrounding(required bool) Option {
	return func(r *Runner) { r.grounding = required }
}

// WithoutDryRun disables the LIMIT 1 probe before full execution.
func WithoutDryRun() Option {
	return func(r *Runner) { r.dryRun = false }
}

// withSleep injects the retry pause for tests.
func withSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// New creates a Runner for one endpoint class. class labels throttle
// state, metrics and cache keys.
func New(class string, exec Executor, th Throttler, opts ...Option) *Runner {
	r := &Runner{
		class:    class,
		exec:     exec,
		throttle: th,
		log:      slog.Default(),
		limitCap: 200,
		timeout:  DefaultTimeout,
		dryRun:   true,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var queryFormRe = regexp.MustCompile(`(?i)\b(SELECT|ASK|CONSTRUCT|DESCRIBE)\b`)

// Run executes one request through the pipeline and always returns a
// terminal Result; errors surface inside it, never alongside it.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{
		RequestID:      uuid.NewString(),
		Rows:           []map[string]transport.Value{},
		RepairsApplied: []string{},
		Warnings:       []string{},
	}

	r.run(ctx, req, &res)

	res.RowCount = len(res.Rows)
	res.Stats.ElapsedMs = time.Since(start).Milliseconds()
	r.finish(&res, start)
	return res
}

func (r *Runner) run(ctx context.Context, req Request, res *Result) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		res.fail(classify.CodeSyntax, "Query is empty.", "Provide a SELECT or ASK query.")
		return
	}
	if form := queryForm(query); form == "CONSTRUCT" || form == "DESCRIBE" {
		res.fail(classify.CodeSyntax,
			fmt.Sprintf("%s queries are not supported.", form),
			"Rewrite the query as SELECT.")
		return
	}

	// Lint and rewrite.
	lr := lint.Lint(query, lint.Options{
		LimitCap:         clampLimitCap(orDefault(req.LimitCap, r.limitCap)),
		RequireGrounding: r.grounding,
		Entities:         lint.NewIDSet(req.Entities),
		Properties:       lint.NewIDSet(req.Properties),
	})
	res.Warnings = append(res.Warnings, lr.Warnings...)
	if !lr.OK {
		for _, rule := range lr.Blocked {
			if r.metrics != nil {
				r.metrics.LintBlocksTotal.WithLabelValues(string(rule)).Inc()
			}
		}
		res.fail(classify.CodeLinterBlock,
			strings.Join(lr.Errors, " "),
			"Fix the reported issues and resubmit.")
		return
	}
	linted := lr.Query

	// The cache key is taken before any repair rewrites, so repaired
	// runs still land on the key future identical submissions will hit.
	key := cache.MakeKey(r.class, cache.NormalizeQuery(linted))
	res.queryHash = key
	if !req.SkipCache && r.results != nil {
		if hit, ok := r.results.Get(key); ok {
			res.OK = true
			res.FromCache = true
			res.Vars = hit.Vars
			res.Rows = hit.Rows
			res.Warnings = append(res.Warnings, hit.Warnings...)
			if r.metrics != nil {
				r.metrics.CacheServed.WithLabelValues(r.class).Inc()
			}
			return
		}
	}

	timeout := clampTimeout(req.Timeout, r.timeout)

	// Probe with LIMIT 1 under a short budget before spending the full
	// one. A query that cannot return a single row is not worth retry
	// or repair, so any probe failure ends the run with its classified
	// code.
	if r.dryRun {
		if code, msg, hint, ok := r.probe(ctx, linted, timeout); !ok {
			res.Stats.Attempts = 1
			res.fail(code, msg, hint)
			return
		}
	}

	r.execute(ctx, linted, timeout, key, res)
}

// probe runs the query with LIMIT 1 under a short budget. ok is false
// when the probe failed.
func (r *Runner) probe(ctx context.Context, query string, budget time.Duration) (classify.Code, string, string, bool) {
	timeout := budget
	if timeout > dryRunCap {
		timeout = dryRunCap
	}

	if err := r.throttle.Wait(ctx, r.class); err != nil {
		return classify.CodeTimeout, err.Error(), "", false
	}
	_, err := r.exec.Execute(ctx, lint.WithLimit(query, 1), timeout)
	r.throttle.Observe(r.class, isRateLimited(err))
	if err == nil {
		return "", "", "", true
	}
	cls := classify.Classify(err.Error())
	r.log.Debug("dry run failed", "class", r.class, "code", cls.Code, "error", err)
	return cls.Code, err.Error(), cls.Hint, false
}

func (r *Runner) execute(ctx context.Context, query string, timeout time.Duration, key string, res *Result) {
	repairs := newRepairLog()
	current := query

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Stats.Attempts = attempt

		if err := r.throttle.Wait(ctx, r.class); err != nil {
			res.fail(classify.CodeTimeout, "Request cancelled while waiting for throttle: "+err.Error(), "")
			res.RepairsApplied = repairs.Names()
			return
		}

		resp, err := r.exec.Execute(ctx, current, timeout)
		r.throttle.Observe(r.class, isRateLimited(err))

		if err == nil {
			res.OK = true
			res.Vars = resp.Vars
			res.Rows = resp.Rows
			if len(resp.Rows) == 0 && resp.Boolean == nil {
				res.Warnings = append(res.Warnings,
					"Query succeeded but returned zero rows. Check the entity and property IDs, or relax filters.")
			}
			res.RepairsApplied = repairs.Names()
			r.store(key, res)
			return
		}

		cls := classify.Classify(err.Error())
		r.log.Info("query attempt failed",
			"class", r.class,
			"attempt", attempt,
			"code", cls.Code,
			"error", err)

		if attempt == maxAttempts || !classify.Repairable(cls.Code) {
			res.fail(cls.Code, err.Error(), cls.Hint)
			res.RepairsApplied = repairs.Names()
			return
		}

		next, repair, ok := r.repair(ctx, current, cls.Code, attempt)
		if !ok {
			res.fail(cls.Code, err.Error(), cls.Hint)
			res.RepairsApplied = repairs.Names()
			return
		}
		repairs = repairs.Append(repair)
		if r.metrics != nil {
			r.metrics.RepairsTotal.WithLabelValues(string(repair.Kind)).Inc()
		}
		current = next
	}
}

// repair produces the next query to try. ok is false when no strategy
// applies, which ends the run with the original failure.
func (r *Runner) repair(ctx context.Context, query string, code classify.Code, attempt int) (string, Repair, bool) {
	switch code {
	case classify.CodeRateLimit:
		wait := time.Duration(1<<uint(attempt)) * time.Second
		if wait > rateWaitCap {
			wait = rateWaitCap
		}
		if err := r.sleep(ctx, wait); err != nil {
			return "", Repair{}, false
		}
		return query, Repair{Kind: RepairRateWait, Attempt: attempt,
			Detail: fmt.Sprintf("waited %s before retry", wait)}, true

	case classify.CodeTimeout:
		if lint.HasLabelService(query) {
			return lint.StripLabelService(query), Repair{Kind: RepairStripLabels, Attempt: attempt,
				Detail: "removed SERVICE wikibase:label"}, true
		}
		next, newLimit, ok := lint.HalveLimit(query)
		if !ok {
			return "", Repair{}, false
		}
		return next, Repair{Kind: RepairHalveLimit, Attempt: attempt,
			Detail: fmt.Sprintf("reduced LIMIT to %d", newLimit)}, true

	default:
		return "", Repair{}, false
	}
}

func (r *Runner) store(key string, res *Result) {
	if r.results == nil || !res.OK {
		return
	}
	if _, err := r.results.Set(key, CachedResult{
		Vars:     res.Vars,
		Rows:     res.Rows,
		Warnings: advisoryWarnings(res.Warnings),
	}); err != nil {
		r.log.Warn("result cache store failed", "class", r.class, "error", err)
	}
}

// advisoryWarnings keeps only warnings worth replaying on cache hits.
// Lint rewrite notices are re-derived on every submission and would
// duplicate otherwise.
func advisoryWarnings(warnings []string) []string {
	var out []string
	for _, w := range warnings {
		if strings.Contains(w, "zero rows") {
			out = append(out, w)
		}
	}
	return out
}

func (r *Runner) finish(res *Result, start time.Time) {
	status := "ok"
	if !res.OK {
		status = strings.ToLower(res.ErrorCode)
	}
	if r.metrics != nil {
		r.metrics.QueriesTotal.WithLabelValues(r.class, status).Inc()
		r.metrics.QueryDuration.WithLabelValues(r.class).Observe(time.Since(start).Seconds())
		if res.Stats.Attempts > 0 {
			r.metrics.QueryAttempts.WithLabelValues(r.class).Observe(float64(res.Stats.Attempts))
		}
	}
	r.audit.Publish(audit.Event{
		RequestID:      res.RequestID,
		Timestamp:      start.UTC(),
		EndpointClass:  r.class,
		QueryHash:      res.queryHash,
		OK:             res.OK,
		ErrorCode:      res.ErrorCode,
		Attempts:       res.Stats.Attempts,
		RepairsApplied: res.RepairsApplied,
		FromCache:      res.FromCache,
		RowCount:       res.RowCount,
		ElapsedMs:      res.Stats.ElapsedMs,
	})
}

func (res *Result) fail(code classify.Code, msg, hint string) {
	res.OK = false
	res.ErrorCode = string(code)
	res.ErrorMessage = msg
	res.Hint = hint
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var se *transport.StatusError
	return stderrors.As(err, &se) && se.RateLimited()
}

func queryForm(q string) string {
	m := queryFormRe.FindString(q)
	return strings.ToUpper(m)
}

func clampTimeout(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

func clampLimitCap(n int) int {
	switch {
	case n < MinLimitCap:
		return MinLimitCap
	case n > MaxLimitCap:
		return MaxLimitCap
	}
	return n
}

func orDefault(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}
