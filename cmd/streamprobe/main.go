package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// streamprobe measures SSE frame latency against a running gateway:
// time to init, time to first token/paper, inter-frame gaps, and total
// stream duration.

type options struct {
	baseURL  string
	endpoint string
	message  string
	query    string
	token    string
	runs     int
	timeout  time.Duration
	verbose  bool
}

type runResult struct {
	toInit      time.Duration
	toFirstItem time.Duration
	total       time.Duration
	items       int
	terminal    string
}

func main() {
	opts := parseFlags()

	results := make([]runResult, 0, opts.runs)
	for i := 0; i < opts.runs; i++ {
		res, err := probe(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %d: %v\n", i+1, err)
			os.Exit(1)
		}
		if opts.verbose {
			fmt.Printf("run %d: init=%s first_item=%s total=%s items=%d terminal=%s\n",
				i+1, res.toInit, res.toFirstItem, res.total, res.items, res.terminal)
		}
		results = append(results, res)
	}

	report(results)
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "gateway base URL")
	flag.StringVar(&opts.endpoint, "endpoint", "chat", "endpoint to probe: chat|literature")
	flag.StringVar(&opts.message, "message", "Reply in one short sentence: what is a transformer?", "chat message")
	flag.StringVar(&opts.query, "query", "attention mechanisms", "literature search query")
	flag.StringVar(&opts.token, "token", "", "bearer token, if the gateway requires one")
	flag.IntVar(&opts.runs, "runs", 3, "number of probe runs")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "per-run timeout")
	flag.BoolVar(&opts.verbose, "v", false, "per-run output")
	flag.Parse()

	if opts.endpoint != "chat" && opts.endpoint != "literature" {
		fmt.Fprintf(os.Stderr, "unsupported endpoint %q\n", opts.endpoint)
		os.Exit(2)
	}
	return opts
}

func probe(opts options) (runResult, error) {
	var req *http.Request
	var err error
	switch opts.endpoint {
	case "chat":
		body, _ := json.Marshal(map[string]any{"message": opts.message})
		req, err = http.NewRequest(http.MethodPost, opts.baseURL+"/v1/chat/stream", bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	case "literature":
		req, err = http.NewRequest(http.MethodGet,
			opts.baseURL+"/v1/literature/search/stream?query="+strings.ReplaceAll(opts.query, " ", "+"), nil)
	}
	if err != nil {
		return runResult{}, err
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	client := &http.Client{Timeout: opts.timeout}
	started := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return runResult{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return runResult{}, fmt.Errorf("status %d", res.StatusCode)
	}

	var out runResult
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		event, ok := strings.CutPrefix(line, "event: ")
		if !ok {
			continue
		}
		switch event {
		case "init":
			out.toInit = time.Since(started)
		case "token", "paper", "tables", "entities", "citations":
			if out.items == 0 {
				out.toFirstItem = time.Since(started)
			}
			out.items++
		case "done", "error":
			out.terminal = event
			out.total = time.Since(started)
			return out, scanner.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}
	return out, fmt.Errorf("stream ended without a terminal frame")
}

func report(results []runResult) {
	fmt.Printf("runs: %d\n", len(results))
	fmt.Printf("time_to_init:       p50=%s p95=%s\n", percentile(results, 50, func(r runResult) time.Duration { return r.toInit }), percentile(results, 95, func(r runResult) time.Duration { return r.toInit }))
	fmt.Printf("time_to_first_item: p50=%s p95=%s\n", percentile(results, 50, func(r runResult) time.Duration { return r.toFirstItem }), percentile(results, 95, func(r runResult) time.Duration { return r.toFirstItem }))
	fmt.Printf("total:              p50=%s p95=%s\n", percentile(results, 50, func(r runResult) time.Duration { return r.total }), percentile(results, 95, func(r runResult) time.Duration { return r.total }))

	errors := 0
	for _, r := range results {
		if r.terminal != "done" {
			errors++
		}
	}
	fmt.Printf("error_terminals:    %d\n", errors)
}

func percentile(results []runResult, p int, pick func(runResult) time.Duration) time.Duration {
	if len(results) == 0 {
		return 0
	}
	vals := make([]time.Duration, len(results))
	for i, r := range results {
		vals[i] = pick(r)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	idx := (p*len(vals) + 99) / 100
	if idx > 0 {
		idx--
	}
	return vals[idx]
}
