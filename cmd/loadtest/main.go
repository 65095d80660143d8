// Command loadtest drives a running searcher with a mix of free-text and AND
// queries and reports throughput, per-kind latency and the cache hit ratio.
// Query terms come from -terms or are sampled from a built index.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/handler"
	"golang.org/x/time/rate"
)

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	qps         float64
	limit       int
	queries     []string
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the searcher")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&opts.qps, "qps", 0, "target queries per second across all workers, 0 for unthrottled")
	flag.IntVar(&opts.limit, "limit", 10, "limit sent with every query")
	terms := flag.String("terms", "", "comma-separated query terms")
	indexDir := flag.String("index", "", "index directory to sample query terms from")
	sample := flag.Int("sample", 200, "terms to sample from -index")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	vocab := splitTerms(*terms)
	if *indexDir != "" {
		sampled, err := sampleTerms(*indexDir, *sample)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sampling terms: %v\n", err)
			os.Exit(1)
		}
		vocab = append(vocab, sampled...)
	}
	if len(vocab) == 0 {
		vocab = []string{"search", "index", "term", "document", "query"}
	}
	opts.baseURL = strings.TrimRight(opts.baseURL, "/")
	opts.queries = buildQueries(vocab)

	fmt.Fprintf(os.Stderr, "loadtest: %s, %d workers, %s, %d queries from %d terms\n",
		opts.baseURL, opts.concurrency, opts.duration, len(opts.queries), len(vocab))

	rep := run(opts).report(opts.duration)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
	} else {
		rep.print(os.Stdout)
	}
	if rep.Requests == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the searcher running?")
		os.Exit(1)
	}
}

func splitTerms(s string) []string {
	var out []string
	for t := range strings.SplitSeq(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// sampleTerms reads up to n evenly spaced terms from the lexicon in dir.
func sampleTerms(dir string, n int) ([]string, error) {
	gen, err := segment.Open(dir)
	if err != nil {
		return nil, err
	}
	defer gen.Close()

	total := gen.Len()
	if total == 0 || n <= 0 {
		return nil, nil
	}
	step := max(total/n, 1)
	out := make([]string, 0, min(n, total))
	for i := 0; i < total && len(out) < n; i += step {
		term, err := gen.TermAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, term)
	}
	return out, nil
}

// buildQueries pairs neighbouring terms into two-word free-text and AND
// queries alongside the single terms.
func buildQueries(vocab []string) []string {
	queries := slices.Clone(vocab)
	for i := 0; i+1 < len(vocab); i += 2 {
		queries = append(queries,
			vocab[i]+" "+vocab[i+1],
			vocab[i]+" AND "+vocab[i+1],
		)
	}
	return queries
}

func queryKind(q string) string {
	if slices.Contains(strings.Fields(q), "AND") {
		return "and"
	}
	return "free_text"
}

type recorder struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	status    map[int]int64
	failures  int64
	cacheHits int64
}

func newRecorder() *recorder {
	return &recorder{
		latencies: make(map[string][]time.Duration),
		status:    make(map[int]int64),
	}
}

func (r *recorder) observe(kind string, took time.Duration, status int, cache string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		return
	}
	r.status[status]++
	if status != http.StatusOK {
		r.failures++
		return
	}
	r.latencies[kind] = append(r.latencies[kind], took)
	if cache == "hit" {
		r.cacheHits++
	}
}

func run(opts options) *recorder {
	rec := newRecorder()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.qps), max(1, int(opts.qps/10)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := range opts.concurrency {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for limiter.Wait(ctx) == nil {
				q := opts.queries[rng.IntN(len(opts.queries))]
				took, status, cache, err := search(ctx, client, opts, q)
				if ctx.Err() != nil {
					return
				}
				rec.observe(queryKind(q), took, status, cache, err)
			}
		})
	}
	wg.Wait()
	return rec
}

func search(ctx context.Context, client *http.Client, opts options, q string) (time.Duration, int, string, error) {
	u := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", opts.baseURL, url.QueryEscape(q), opts.limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, 0, "", err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return time.Since(start), resp.StatusCode, resp.Header.Get(handler.CacheHeader), nil
}

type latency struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

type report struct {
	Requests     int64              `json:"requests"`
	Failures     int64              `json:"failures"`
	RequestsPerS float64            `json:"requests_per_second"`
	CacheHitRate float64            `json:"cache_hit_rate"`
	Latency      map[string]latency `json:"latency"`
	StatusCodes  map[int]int64      `json:"status_codes"`
}

func (r *recorder) report(elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := report{
		Failures:    r.failures,
		Latency:     make(map[string]latency, len(r.latencies)),
		StatusCodes: make(map[int]int64, len(r.status)),
	}
	var ok int64
	for kind, ls := range r.latencies {
		sorted := slices.Sorted(slices.Values(ls))
		rep.Latency[kind] = latency{
			Count: len(sorted),
			P50:   percentile(sorted, 50),
			P95:   percentile(sorted, 95),
			P99:   percentile(sorted, 99),
			Max:   sorted[len(sorted)-1],
		}
		ok += int64(len(sorted))
	}
	for code, n := range r.status {
		rep.StatusCodes[code] = n
	}
	rep.Requests = ok + r.failures
	if elapsed > 0 {
		rep.RequestsPerS = float64(rep.Requests) / elapsed.Seconds()
	}
	if ok > 0 {
		rep.CacheHitRate = float64(r.cacheHits) / float64(ok)
	}
	return rep
}

func (rep report) print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "requests\t%d\n", rep.Requests)
	fmt.Fprintf(tw, "failures\t%d\n", rep.Failures)
	fmt.Fprintf(tw, "req/s\t%.1f\n", rep.RequestsPerS)
	fmt.Fprintf(tw, "cache hit rate\t%.1f%%\n", rep.CacheHitRate*100)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "kind\tcount\tp50\tp95\tp99\tmax")
	for _, kind := range slices.Sorted(maps.Keys(rep.Latency)) {
		l := rep.Latency[kind]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", kind, l.Count, l.P50, l.P95, l.P99, l.Max)
	}
	fmt.Fprintln(tw)
	for _, code := range slices.Sorted(maps.Keys(rep.StatusCodes)) {
		fmt.Fprintf(tw, "HTTP %d\t%d\n", code, rep.StatusCodes[code])
	}
	tw.Flush()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
