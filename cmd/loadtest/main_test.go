package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "pos", input: "pos", want: modePOS},
		{name: "webhook", input: "webhook", want: modeWebhook},
		{name: "trimmed", input: "  pos ", want: modePOS},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-url=http://127.0.0.1:8080",
			"-mode=webhook",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-product=prod-x",
			"-variant=large",
			"-qty=2",
			"-amount-minor=99",
			"-currency=eur",
			"-secret=whsec_test",
			"-customer-tag=stage",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeWebhook {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.quantity != 2 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
			if cfg.productID != "prod-x" || cfg.variantKey != "large" {
				t.Fatalf("unexpected product config: %+v", cfg)
			}
			if cfg.amountMinor != 99 || cfg.currency != "eur" || cfg.secret != "whsec_test" {
				t.Fatalf("unexpected webhook config: %+v", cfg)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
			if cfg.mode != modePOS {
				t.Fatalf("expected default pos mode, got %s", cfg.mode)
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "empty url", args: []string{"-url= "}, wantErr: "url is required"},
			{name: "zero quantity", args: []string{"-qty=0"}, wantErr: "qty must be > 0"},
			{name: "webhook without secret", args: []string{"-mode=webhook"}, wantErr: "secret is required in webhook mode"},
			{name: "webhook empty currency", args: []string{"-mode=webhook", "-secret=s", "-currency= "}, wantErr: "currency is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, "200", true)
	c.record("scenario", 20*time.Millisecond, "500", false)
	c.record("POSCheckout", 15*time.Millisecond, "200", true)

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.SuccessScenarios != 1 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.ErrorRate != 0.5 {
		t.Fatalf("unexpected error rate: %f", r.ErrorRate)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}

	scenario, ok := r.Methods["scenario"]
	if !ok {
		t.Fatalf("scenario stats missing")
	}
	if scenario.Codes["200"] != 1 || scenario.Codes["500"] != 1 {
		t.Fatalf("unexpected codes: %+v", scenario.Codes)
	}
	if _, ok := r.Methods["POSCheckout"]; !ok {
		t.Fatalf("expected POSCheckout stats in report")
	}
	if r.ScenarioLatencyMs.Max <= 0 {
		t.Fatalf("expected non-zero scenario latency: %+v", r.ScenarioLatencyMs)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if summary.P50 != 25 {
		t.Fatalf("unexpected p50: %f", summary.P50)
	}
	if p := percentile(values, 95); p <= 0 {
		t.Fatalf("unexpected percentile: %f", p)
	}
	if got := buildLatencySummary(nil); got != (latencySummary{}) {
		t.Fatalf("expected zero summary for empty input: %+v", got)
	}
	if got := percentile([]float64{7}, 99); got != 7 {
		t.Fatalf("unexpected single-value percentile: %f", got)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", sample); err == nil {
		t.Fatalf("expected error for path outside current directory")
	}
}

func TestRunScenarioPOS(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pos/checkout" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload struct {
			Items []struct {
				ProductID  string `json:"productId"`
				VariantKey string `json:"variantKey"`
				Quantity   int    `json:"quantity"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(payload.Items) != 1 || payload.Items[0].ProductID != "prod-1" || payload.Items[0].Quantity != 2 {
			t.Errorf("unexpected request payload: %+v", payload)
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"orderId":"ord-1"}`))
	}))
	defer srv.Close()

	cfg := config{
		baseURL:    srv.URL,
		mode:       modePOS,
		timeout:    time.Second,
		productID:  "prod-1",
		variantKey: "default",
		quantity:   2,
	}
	col := newCollector()
	client := &http.Client{Timeout: cfg.timeout}

	if err := runScenario(client, cfg, 1, "run-1", col); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 server call, got %d", calls.Load())
	}

	r := col.buildReport(time.Now(), time.Second)
	if r.TotalScenarios != 1 || r.SuccessScenarios != 1 {
		t.Fatalf("unexpected report: %+v", r)
	}
	method, ok := r.Methods["POSCheckout"]
	if !ok || method.Codes["200"] != 1 {
		t.Fatalf("POSCheckout metric missing or wrong: %+v", r.Methods)
	}
}

func TestRunScenarioWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webhooks/payment" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		sig := r.Header.Get("X-Payment-Signature")
		if !strings.HasPrefix(sig, "t=") || !strings.Contains(sig, ",v1=") {
			t.Errorf("unexpected signature header: %q", sig)
		}

		var event struct {
			Type string `json:"type"`
			Data struct {
				Object struct {
					ID          string `json:"id"`
					AmountTotal int64  `json:"amount_total"`
					Metadata    struct {
						BuyerID string `json:"buyerId"`
						Items   string `json:"items"`
					} `json:"metadata"`
				} `json:"object"`
			} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decode event: %v", err)
		}
		if event.Type != "checkout.session.completed" {
			t.Errorf("unexpected event type: %s", event.Type)
		}
		if !strings.HasPrefix(event.Data.Object.ID, "cs_load_run-w_") {
			t.Errorf("unexpected session id: %s", event.Data.Object.ID)
		}
		if event.Data.Object.AmountTotal != 1500 {
			t.Errorf("unexpected amount: %d", event.Data.Object.AmountTotal)
		}
		if !strings.Contains(event.Data.Object.Metadata.Items, `"quantity":1`) {
			t.Errorf("unexpected items metadata: %s", event.Data.Object.Metadata.Items)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	cfg := config{
		baseURL:     srv.URL,
		mode:        modeWebhook,
		timeout:     time.Second,
		productID:   "prod-1",
		variantKey:  "default",
		quantity:    1,
		amountMinor: 1500,
		currency:    "usd",
		secret:      "whsec_test",
		customerTag: "load",
	}
	col := newCollector()
	client := &http.Client{Timeout: cfg.timeout}

	if err := runScenario(client, cfg, 7, "run-w", col); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	r := col.buildReport(time.Now(), time.Second)
	method, ok := r.Methods["PaymentWebhook"]
	if !ok || method.Success != 1 {
		t.Fatalf("PaymentWebhook metric missing or wrong: %+v", r.Methods)
	}
}

func TestRunScenarioRecordsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config{
		baseURL:    srv.URL,
		mode:       modePOS,
		timeout:    time.Second,
		productID:  "prod-1",
		variantKey: "default",
		quantity:   1,
	}
	col := newCollector()
	client := &http.Client{Timeout: cfg.timeout}

	err := runScenario(client, cfg, 1, "run-f", col)
	if err == nil || !strings.Contains(err.Error(), "returned status 500") {
		t.Fatalf("expected status error, got %v", err)
	}

	r := col.buildReport(time.Now(), time.Second)
	if r.FailedScenarios != 1 {
		t.Fatalf("expected 1 failed scenario: %+v", r)
	}
	scenario := r.Methods["scenario"]
	if scenario.Codes["500"] != 1 {
		t.Fatalf("expected scenario code 500: %+v", scenario.Codes)
	}

	unreachable := config{
		baseURL:    "http://127.0.0.1:1",
		mode:       modePOS,
		timeout:    200 * time.Millisecond,
		productID:  "prod-1",
		variantKey: "default",
		quantity:   1,
	}
	if err := runScenario(client, unreachable, 2, "run-f", col); err == nil {
		t.Fatalf("expected transport error")
	}
	r = col.buildReport(time.Now(), time.Second)
	scenario = r.Methods["scenario"]
	if scenario.Codes[statusTransportError] == 0 {
		t.Fatalf("expected transport_error code: %+v", scenario.Codes)
	}
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario":    {Calls: 2, Success: 2},
			"POSCheckout": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modePOS, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "POSCheckout") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pos/checkout" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"orderId":"ord-smoke"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-url=" + srv.URL,
		"-mode=pos",
		"-total=5",
		"-concurrency=2",
		"-timeout=2s",
		"-output=" + outPath,
	}, func() {
		main()
	})

	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
