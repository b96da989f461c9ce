package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// load-test drives a running smssync-api: it submits outbound messages and
// posts inbound SMS, each inbound hash several times, so idempotent receive
// is exercised under concurrency.

type result struct {
	name      string
	total     int
	failed    int
	duration  time.Duration
	latencies []time.Duration
	errors    map[string]int
}

type recorder struct {
	mu  sync.Mutex
	res result
}

func (r *recorder) record(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.total++
	r.res.latencies = append(r.res.latencies, d)
	if err != nil {
		r.res.failed++
		r.res.errors[err.Error()]++
	}
}

func run(ctx context.Context, name string, requests, concurrency int, fn func(ctx context.Context, i int) error) result {
	rec := &recorder{res: result{name: name, errors: make(map[string]int)}}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for i := 0; i < requests; i++ {
		i := i
		g.Go(func() error {
			t := time.Now()
			err := fn(ctx, i)
			rec.record(time.Since(t), err)
			return nil
		})
	}
	_ = g.Wait()

	rec.res.duration = time.Since(start)
	return rec.res
}

func submit(client *http.Client, base, secret string) func(context.Context, int) error {
	return func(ctx context.Context, i int) error {
		body, _ := json.Marshal(map[string]any{
			"to":   []string{fmt.Sprintf("+25570%07d", i), fmt.Sprintf("+25571%07d", i)},
			"body": fmt.Sprintf("load test message #%d", i),
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/messages", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-SMSSync-Secret", secret)
		return expect(client.Do(req))
	}
}

func receive(client *http.Client, base, path, secret string, dup int) func(context.Context, int) error {
	return func(ctx context.Context, i int) error {
		form := url.Values{
			"from":    {fmt.Sprintf("+25572%07d", i/dup)},
			"message": {fmt.Sprintf("inbound #%d", i/dup)},
			"hash":    {fmt.Sprintf("load-%d", i/dup)},
			"secret":  {secret},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return expect(client.Do(req))
	}
}

func expect(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func report(r result) {
	sort.Slice(r.latencies, func(i, j int) bool { return r.latencies[i] < r.latencies[j] })
	pct := func(p float64) time.Duration {
		if len(r.latencies) == 0 {
			return 0
		}
		return r.latencies[int(p*float64(len(r.latencies)-1))]
	}

	fmt.Printf("\n%s\n", r.name)
	fmt.Printf("  requests   %d (%d failed)\n", r.total, r.failed)
	fmt.Printf("  duration   %v\n", r.duration)
	fmt.Printf("  throughput %.1f req/s\n", float64(r.total)/r.duration.Seconds())
	fmt.Printf("  p50 %v  p95 %v  p99 %v\n", pct(0.50), pct(0.95), pct(0.99))
	for msg, n := range r.errors {
		fmt.Printf("  error %q x%d\n", msg, n)
	}
}

func main() {
	base := getenv("TARGET_URL", "http://localhost:8080")
	path := getenv("SMSSYNC_PATH", "/smssync")
	secret := os.Getenv("SMSSYNC_SECRET")
	requests := atoi("REQUESTS", 500)
	concurrency := atoi("CONCURRENCY", 25)

	client := &http.Client{Timeout: 10 * time.Second}
	if err := expect(client.Get(base + "/health")); err != nil {
		fmt.Fprintf(os.Stderr, "server not reachable at %s: %v\n", base, err)
		os.Exit(1)
	}

	ctx := context.Background()
	report(run(ctx, "submit /api/messages", requests, concurrency, submit(client, base, secret)))
	report(run(ctx, "receive "+path+" (each hash x3)", requests, concurrency, receive(client, base, path, secret, 3)))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
