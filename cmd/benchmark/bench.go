package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/analytics"
	"github.com/nulzo/omni-router/internal/app"
	"github.com/nulzo/omni-router/internal/cli"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/server"
	"github.com/nulzo/omni-router/internal/store/sqlite"
)

const benchKey = "bench-key-12345"

type scenario struct {
	path string
	body string
}

// the ensemble query is long enough to exercise generation fan-out and fusion
var scenarios = map[string][]scenario{
	"route": {
		{"/v1/route", `{"query": "Write a Go function that parses RFC 3339 timestamps"}`},
		{"/v1/route", `{"query": "Translate good morning into French"}`},
		{"/v1/route", `{"query": "solve the equation x^2 = 16"}`},
	},
	"mode": {
		{"/v1/mode", `{"query": "How do I reset my password?"}`},
	},
	"rank": {
		{"/v1/rank", `{"prompt": "What is the capital of France?", "candidates": ["Paris is the capital of France.", "Berlin", "I like trains"]}`},
	},
	"single": {
		{"/v1/completions", `{"query": "What is the capital of France?", "mode": "single"}`},
	},
	"ensemble": {
		{"/v1/completions", `{"query": "Prove that the square root of two is irrational", "mode": "ensemble", "max_tokens": 32}`},
	},
	"chat": {
		{"/v1/chat/completions", `{"model": "omni-auto", "messages": [{"role": "user", "content": "Hello"}]}`},
	},
}

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	endpoint := flag.String("endpoint", "route", "route, mode, rank, single, ensemble or chat")
	upstreamLatency := flag.Duration("upstream-latency", 10*time.Millisecond, "simulated provider latency")
	redisAddr := flag.String("redis", "", "redis address for the embedding store, memory when empty")
	flag.Parse()

	targets, ok := scenarios[*endpoint]
	if !ok {
		log.Fatalf("unknown endpoint %q", *endpoint)
	}

	upstream := newMockUpstream(*upstreamLatency)
	defer upstream.Close()

	router, shutdown := startRouter(upstream.URL, *redisAddr)
	defer shutdown()

	fmt.Printf("%s Running %s benchmark: %s duration, %d req/s\n", cli.Arrow(), cli.Style(*endpoint, cli.Bold), *duration, *rate)

	var next uint64
	targeter := func(t *vegeta.Target) error {
		s := targets[atomic.AddUint64(&next, 1)%uint64(len(targets))]
		t.Method = http.MethodPost
		t.URL = router.URL + s.path
		t.Body = []byte(s.body)
		t.Header = http.Header{
			"Content-Type":      []string{"application/json"},
			"Authorization":     []string{"Bearer " + benchKey},
			"X-Benchmark-Start": []string{strconv.FormatInt(time.Now().UnixNano(), 10)},
		}
		return nil
	}

	done := make(chan struct{})
	var peakHeap uint64
	go sampleHeap(done, &peakHeap)

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics
	modes := map[string]int{}
	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, *endpoint) {
		metrics.Add(res)
		if m := res.Headers.Get("X-Omni-Mode"); m != "" {
			modes[m]++
		}
	}
	metrics.Close()
	close(done)

	report(&metrics, modes, atomic.LoadUint64(&peakHeap), upstream.calls.Load())
}

// startRouter runs the full server in-process on an ephemeral port.
func startRouter(upstreamURL, redisAddr string) (*httptest.Server, func()) {
	gin.SetMode(gin.ReleaseMode)
	logger := zap.NewNop()

	dir, err := os.MkdirTemp("", "omni-bench")
	if err != nil {
		log.Fatal(err)
	}

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Env: "production", APIKeys: []string{benchKey}},
		Database:  config.DatabaseConfig{Path: filepath.Join(dir, "bench.db")},
		Redis:     config.RedisConfig{Enabled: redisAddr != "", Addr: redisAddr},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1e6, Burst: 1e6},
		Embedding: config.EmbeddingConfig{Backend: "hashing", Dimensions: 384},
		Routing: config.RoutingConfig{
			LengthThreshold:       50,
			NumModelsToQuery:      3,
			NumCandidatesPerModel: 5,
			TopKFusion:            3,
			MaxGenerationTokens:   50,
			MaxParallel:           4,
			FuserModel:            "gpt-4o-mini",
		},
		Providers: []config.ProviderConfig{
			{ID: "openai", Type: "openai", APIKey: "mock-key", BaseURL: upstreamURL + "/v1", Enabled: true},
			{ID: "anthropic", Type: "openai", APIKey: "mock-key", BaseURL: upstreamURL + "/v1", Enabled: true},
			{ID: "google", Type: "openai", APIKey: "mock-key", BaseURL: upstreamURL + "/v1", Enabled: true},
		},
	}

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.Path, logger)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ingestor := analytics.NewIngestor(logger, repo)
	ingestor.Start(ctx)

	embeddings, closeCache := app.NewCache(ctx, cfg.Redis, logger)
	service, healthy, err := app.NewGateway(ctx, cfg, logger, app.Deps{Ingestor: ingestor, Cache: embeddings})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s %d mock providers registered\n", cli.CheckMark(), healthy)

	srv := httptest.NewServer(server.New(cfg, logger, service, analytics.NewService(repo), repo).Handler())
	return srv, func() {
		srv.Close()
		ingestor.Stop()
		cancel()
		_ = closeCache()
		_ = repo.Close()
		_ = os.RemoveAll(dir)
	}
}

type mockUpstream struct {
	*httptest.Server
	calls atomic.Int64
}

// newMockUpstream speaks the OpenAI chat completions API and honors n.
func newMockUpstream(latency time.Duration) *mockUpstream {
	m := &mockUpstream{}
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": []}`))
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)

		var req struct {
			Model string `json:"model"`
			N     int    `json:"n"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.N < 1 {
			req.N = 1
		}

		choices := make([]map[string]interface{}, req.N)
		for i := range choices {
			choices[i] = map[string]interface{}{
				"index":         i,
				"message":       map[string]string{"role": "assistant", "content": fmt.Sprintf("%s answer %d", req.Model, i)},
				"finish_reason": "stop",
			}
		}

		time.Sleep(latency)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "bench-123",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": choices,
		})
	})

	m.Server = httptest.NewServer(mux)
	return m
}

func sampleHeap(done <-chan struct{}, peak *uint64) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var stats runtime.MemStats
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			runtime.ReadMemStats(&stats)
			if stats.HeapInuse > atomic.LoadUint64(peak) {
				atomic.StoreUint64(peak, stats.HeapInuse)
			}
		}
	}
}

func report(m *vegeta.Metrics, modes map[string]int, peakHeap uint64, upstreamCalls int64) {
	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", m.Latencies.P99)
	fmt.Println("Mean:            ", m.Latencies.Mean)
	fmt.Println("Max:             ", m.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", m.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", m.Throughput)
	fmt.Printf("Peak heap:       %.2f MB\n", float64(peakHeap)/1024/1024)
	fmt.Printf("Upstream calls:  %d\n", upstreamCalls)

	codes := make([]string, 0, len(m.StatusCodes))
	for code := range m.StatusCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("HTTP %s:        %d\n", code, m.StatusCodes[code])
	}
	for mode, n := range modes {
		fmt.Printf("Mode %-9s   %d\n", mode+":", n)
	}
	fmt.Println("--------------------------------------------------")

	if len(m.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")
		for i, msg := range m.Errors {
			if i == 5 {
				break
			}
			fmt.Println(cli.CrossMark(), msg)
		}
	}
}
