// Command benchprobe smoke-tests a running benchd over HTTP: probes,
// instrument state, run listing, error envelopes and metrics. It
// prints one PASS/FAIL line per check, a JSON report at the end, and
// exits nonzero when anything failed. Meant for bench bring-up and CI
// against a staged daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/benchtop-io/benchd/config"
)

// ProbeReport is the machine-readable result, one entry per check.
type ProbeReport struct {
	Timestamp time.Time     `json:"timestamp"`
	BaseURL   string        `json:"base_url"`
	Checks    []CheckResult `json:"checks"`
}

type CheckResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	LatencyMs int64  `json:"latency_ms"`
	Details   string `json:"details,omitempty"`
	Body      string `json:"body,omitempty"` // captured on failure
}

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
}

func main() {
	baseURL := flag.String("base-url", "", "benchd base URL (default BENCHD_BASE_URL or http://localhost:8088)")
	flag.Parse()

	report := runProbes(*baseURL, os.Stdout)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Probe failed: %v\n", err)
		os.Exit(1)
	}
	for _, c := range report.Checks {
		if !c.Passed {
			fmt.Fprintln(os.Stderr, "Probe failed: one or more checks failed")
			os.Exit(1)
		}
	}
}

func runProbes(baseURL string, out io.Writer) ProbeReport {
	if baseURL == "" {
		baseURL = config.ParseString("BENCHD_BASE_URL", "")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8088"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	report := ProbeReport{
		Timestamp: time.Now(),
		BaseURL:   baseURL,
		Checks:    make([]CheckResult, 0),
	}

	runCheck := func(name string, fn func() (string, error)) {
		start := time.Now()
		body, err := fn()
		latency := time.Since(start).Milliseconds()

		res := CheckResult{
			Name:      name,
			Passed:    err == nil,
			LatencyMs: latency,
		}
		if err != nil {
			res.Details = err.Error()
			res.Body = body
			fmt.Fprintf(out, "FAIL: %s (%s)\n", name, err)
		} else {
			fmt.Fprintf(out, "PASS: %s (%dms)\n", name, latency)
		}
		report.Checks = append(report.Checks, res)
	}

	runCheck("health", func() (string, error) {
		code, _, body, err := get(baseURL + "/healthz")
		if err != nil {
			return "", err
		}
		if code != http.StatusOK {
			return string(body), fmt.Errorf("status %d", code)
		}
		var h struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &h); err != nil {
			return string(body), fmt.Errorf("invalid json: %v", err)
		}
		if h.Status != "healthy" {
			return string(body), fmt.Errorf("status %q", h.Status)
		}
		return "", nil
	})

	runCheck("readiness", func() (string, error) {
		code, _, body, err := get(baseURL + "/readyz")
		if err != nil {
			return "", err
		}
		if code != http.StatusOK {
			return string(body), fmt.Errorf("not ready: status %d", code)
		}
		var r struct {
			Ready  bool                       `json:"ready"`
			Status string                     `json:"status"`
			Checks map[string]json.RawMessage `json:"checks"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return string(body), fmt.Errorf("invalid json: %v", err)
		}
		if !r.Ready {
			return string(body), fmt.Errorf("ready=false with status %d", code)
		}
		return "", nil
	})

	runCheck("instruments", func() (string, error) {
		code, _, body, err := get(baseURL + "/api/v1/instruments")
		if err != nil {
			return "", err
		}
		if code != http.StatusOK {
			return string(body), fmt.Errorf("status %d", code)
		}
		var snap struct {
			Station     string                     `json:"station"`
			Instruments map[string]json.RawMessage `json:"instruments"`
		}
		if err := json.Unmarshal(body, &snap); err != nil {
			return string(body), fmt.Errorf("invalid json: %v", err)
		}
		names := make([]string, 0, len(snap.Instruments))
		for name := range snap.Instruments {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(out, "  station %q: %d instruments %v\n", snap.Station, len(names), names)
		return "", nil
	})

	runCheck("runs", func() (string, error) {
		code, _, body, err := get(baseURL + "/api/v1/runs?limit=1")
		if err != nil {
			return "", err
		}
		if code != http.StatusOK {
			return string(body), fmt.Errorf("status %d", code)
		}
		var page struct {
			Runs  []json.RawMessage `json:"runs"`
			Total int               `json:"total"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return string(body), fmt.Errorf("invalid json: %v", err)
		}
		fmt.Fprintf(out, "  %d runs recorded\n", page.Total)
		return "", nil
	})

	// A handler-level 404 must answer with the JSON error envelope and
	// a request id, or clients cannot correlate failures.
	runCheck("error_envelope", func() (string, error) {
		code, header, body, err := get(baseURL + "/api/v1/instruments/benchprobe-missing/parameters/x")
		if err != nil {
			return "", err
		}
		if code != http.StatusNotFound {
			return string(body), fmt.Errorf("status %d, want 404", code)
		}
		if ct := header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			return string(body), fmt.Errorf("content-type %q", ct)
		}
		var envelope struct {
			Error     string `json:"error"`
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return string(body), fmt.Errorf("invalid json: %v", err)
		}
		if envelope.Error == "" {
			return string(body), fmt.Errorf("empty error field")
		}
		if envelope.RequestID == "" || header.Get("X-Request-Id") == "" {
			return string(body), fmt.Errorf("request id missing")
		}
		return "", nil
	})

	runCheck("monitor_status", func() (string, error) {
		code, _, body, err := get(baseURL + "/api/v1/monitor/status")
		if err != nil {
			return "", err
		}
		// 404 means the monitor is off; routing still works.
		if code != http.StatusOK && code != http.StatusNotFound {
			return string(body), fmt.Errorf("status %d", code)
		}
		return "", nil
	})

	runCheck("metrics", func() (string, error) {
		code, _, body, err := get(baseURL + "/metrics")
		if err != nil {
			return "", err
		}
		if code != http.StatusOK {
			return string(body), fmt.Errorf("status %d", code)
		}
		if !strings.Contains(string(body), "benchd_") {
			return "", fmt.Errorf("no benchd_ metrics in exposition")
		}
		return "", nil
	})

	return report
}

func get(url string) (int, http.Header, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, body, err
}
