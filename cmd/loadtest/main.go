package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	headerUserID      = "X-User-ID"
	headerIdempotency = "Idempotency-Key"

	defaultPriceMinor = int64(1000)
	defaultStock      = int64(1_000_000)
	defaultQty        = int64(1)

	maxResponseBytes = 1 << 20
	maxErrorBody     = 200

	// Имя синтетического метода, под которым учитывается сценарий целиком.
	scenarioMethod = "scenario"
)

type loadMode string

const (
	modeCart         loadMode = "cart"
	modeCartQuote    loadMode = "cart-quote"
	modeCartCheckout loadMode = "cart-checkout"
)

type config struct {
	baseURL      string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	connections  int
	timeout      time.Duration
	mode         loadMode
	checkoutRate int
	sku          string
	priceMinor   int64
	stock        int64
	userTag      string
	outputPath   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// methodStats накапливает сырые наблюдения по одному методу API.
type methodStats struct {
	calls   int64
	success int64
	failed  int64
	codes   map[string]int64
	samples []float64
}

func (s *methodStats) observe(latency time.Duration, status int) {
	s.calls++
	if status >= 200 && status < 300 {
		s.success++
	} else {
		s.failed++
	}
	s.codes[statusLabel(status)]++
	s.samples = append(s.samples, float64(latency.Microseconds())/1000.0)
}

func (s *methodStats) report() methodReport {
	return methodReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     maps.Clone(s.codes),
		LatencyMs: summarizeLatencies(s.samples),
	}
}

// tally — потокобезопасная сводка наблюдений всех воркеров прогона.
type tally struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newTally() *tally {
	return &tally{methods: make(map[string]*methodStats)}
}

func (t *tally) observe(method string, latency time.Duration, status int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.methods[method]
	if stats == nil {
		stats = &methodStats{codes: make(map[string]int64)}
		t.methods[method] = stats
	}
	stats.observe(latency, status)
}

func (t *tally) snapshot(name string) (methodReport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stats, ok := t.methods[name]; ok {
		return stats.report(), true
	}
	return methodReport{}, false
}

func (t *tally) summarize(startedAt time.Time, duration time.Duration) report {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := duration.Seconds()
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed,
		Methods:         make(map[string]methodReport, len(t.methods)),
	}

	for name, stats := range t.methods {
		result.Methods[name] = stats.report()
	}

	if scenario, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if elapsed > 0 {
		result.RPS = float64(result.TotalScenarios) / elapsed
	}

	return result
}

func parseConfig() (config, error) {
	var (
		cfg           config
		modeValue     string
		timeoutValue  string
		durationValue string
	)

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "storefront API base URL")
	flag.IntVar(&cfg.total, "total", 400, "scenario count; with -duration acts as a cap only when set explicitly")
	flag.StringVar(&durationValue, "duration", "0s", "wall-clock run length, 0s switches to count mode (e.g. 10m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent scenario workers")
	flag.IntVar(&cfg.connections, "connections", 20, "size of the HTTP connection pool")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCart), "load mode: cart | cart-quote | cart-checkout")
	flag.IntVar(&cfg.checkoutRate, "checkout-rate", 0, "checkout probability in percent for cart-quote mode (0..100)")
	flag.StringVar(&cfg.sku, "sku", "SKU-LOAD", "load item SKU")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPriceMinor, "load item price in minor units")
	flag.Int64Var(&cfg.stock, "stock", defaultStock, "load item stock quantity to provision")
	flag.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	flag.Parse()

	cfg.totalSet = flagWasSet("total")

	var err error
	if cfg.timeout, err = time.ParseDuration(strings.TrimSpace(timeoutValue)); err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	if cfg.duration, err = time.ParseDuration(strings.TrimSpace(durationValue)); err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}

	return cfg, cfg.validate()
}

func flagWasSet(name string) bool {
	set := false
	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func (c *config) validate() error {
	c.baseURL = strings.TrimSpace(c.baseURL)
	parsed, err := url.Parse(c.baseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("base-url must be a valid http(s) URL: %s", c.baseURL)
	}

	checks := []struct {
		bad bool
		msg string
	}{
		{c.duration < 0, "duration must be >= 0"},
		{c.duration == 0 && c.total <= 0, "total must be > 0 when duration is not set"},
		{c.duration > 0 && c.totalSet && c.total <= 0, "total must be > 0 when explicitly set with duration"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.connections <= 0, "connections must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.priceMinor <= 0, "price-minor must be > 0"},
		{c.stock <= 0, "stock must be > 0"},
		{c.checkoutRate < 0 || c.checkoutRate > 100, "checkout-rate must be between 0 and 100"},
		{strings.TrimSpace(c.sku) == "", "sku is required"},
		{strings.TrimSpace(c.userTag) == "", "user-tag is required"},
	}
	for _, check := range checks {
		if check.bad {
			return errors.New(check.msg)
		}
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCart, modeCartQuote, modeCartCheckout:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// statusError — ответ сервера вне диапазона 2xx.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

type apiClient struct {
	httpClient *http.Client
	baseURL    string
}

func newAPIClient(baseURL string, connections int) *apiClient {
	transport := &http.Transport{
		MaxIdleConns:        connections * 2,
		MaxIdleConnsPerHost: connections,
		IdleConnTimeout:     90 * time.Second,
	}
	return &apiClient{
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// doJSON выполняет запрос и декодирует JSON-ответ. Нулевой статус в
// результате означает, что ответа от сервера не было или он не разобрался.
func (c *apiClient) doJSON(ctx context.Context, method, path string, headers map[string]string, payload, out any) (int, error) {
	req, err := c.newRequest(ctx, method, path, headers, payload)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &statusError{code: resp.StatusCode, body: trimErrorBody(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, headers map[string]string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func trimErrorBody(data []byte) string {
	body := strings.TrimSpace(string(data))
	if len(body) > maxErrorBody {
		return body[:maxErrorBody]
	}
	return body
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fatalf("invalid config: %v", err)
	}

	client := newAPIClient(cfg.baseURL, cfg.connections)
	itemID, err := ensureItem(client, cfg)
	if err != nil {
		fatalf("failed to provision load item: %v", err)
	}

	result := executeRun(client, cfg, itemID)
	printReport(result, cfg)

	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fatalf("failed to write report: %v", err)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// executeRun раздаёт сценарии пулу воркеров и собирает итоговый отчёт.
func executeRun(client *apiClient, cfg config, itemID string) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	stats := newTally()
	runner := &scenarioRunner{client: client, timeout: cfg.timeout, stats: stats}

	queue := make(chan int, cfg.concurrency*2)
	var (
		wg               sync.WaitGroup
		scenarioFailures int64
	)
	wg.Add(cfg.concurrency)
	for range cfg.concurrency {
		go func() {
			defer wg.Done()
			for index := range queue {
				if err := runner.run(cfg, index, runID, itemID); err != nil {
					atomic.AddInt64(&scenarioFailures, 1)
				}
			}
		}()
	}

	dispatchJobs(queue, cfg)
	wg.Wait()

	result := stats.summarize(startedAt, time.Since(startedAt))
	if failed := atomic.LoadInt64(&scenarioFailures); result.FailedScenarios == 0 && failed > 0 {
		result.FailedScenarios = failed
		result.ErrorRate = ratio(failed, result.TotalScenarios)
	}
	return result
}

func dispatchJobs(queue chan<- int, cfg config) {
	defer close(queue)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			queue <- i
		}
		return
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()

	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-deadline.C:
			return
		case queue <- i:
		}
	}
}

type itemPayload struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	StockQuantity int64  `json:"stock_quantity"`
}

// ensureItem создаёт товар для прогона или, если SKU уже занят, находит
// его и пополняет остаток, чтобы сценарии не упирались в нехватку стока.
func ensureItem(client *apiClient, cfg config) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	var created itemPayload
	status, err := client.doJSON(ctx, http.MethodPost, "/items", nil, map[string]any{
		"sku":            cfg.sku,
		"name":           "Load test item " + cfg.sku,
		"price_minor":    cfg.priceMinor,
		"stock_quantity": cfg.stock,
	}, &created)
	if err == nil {
		if created.ID == "" {
			return "", errors.New("item create returned empty id")
		}
		return created.ID, nil
	}
	if status != http.StatusConflict {
		return "", fmt.Errorf("create load item: %w", err)
	}

	return topUpExistingItem(ctx, client, cfg)
}

// topUpExistingItem находит товар по SKU и восстанавливает его остаток.
func topUpExistingItem(ctx context.Context, client *apiClient, cfg config) (string, error) {
	var items []itemPayload
	if _, err := client.doJSON(ctx, http.MethodGet, "/items?limit=1000", nil, nil, &items); err != nil {
		return "", fmt.Errorf("list items: %w", err)
	}

	for _, item := range items {
		if item.SKU != cfg.sku {
			continue
		}
		if _, err := client.doJSON(ctx, http.MethodPut, "/items/"+item.ID+"/stock", nil, map[string]any{"quantity": cfg.stock}, nil); err != nil {
			return "", fmt.Errorf("top up stock: %w", err)
		}
		return item.ID, nil
	}

	return "", fmt.Errorf("item with sku %s not found after create conflict", cfg.sku)
}

// scenarioRunner держит общее для всех шагов сценария: клиент, таймаут
// одного вызова и сводку наблюдений.
type scenarioRunner struct {
	client  *apiClient
	timeout time.Duration
	stats   *tally
}

func (r *scenarioRunner) run(cfg config, index int, runID, itemID string) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		r.stats.observe(scenarioMethod, time.Since(scenarioStart), scenarioStatus)
	}()

	fail := func(err error) error {
		scenarioStatus = callStatus(err)
		return err
	}

	shopperID := fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index)

	if err := r.addToCart(shopperID, itemID); err != nil {
		return fail(err)
	}
	if cfg.mode == modeCart {
		return nil
	}

	if err := r.priceQuote(shopperID, itemID); err != nil {
		return fail(err)
	}

	if cfg.mode == modeCartCheckout || (cfg.mode == modeCartQuote && shouldCheckoutScenario(index, cfg.checkoutRate)) {
		key := fmt.Sprintf("lt-checkout-%s-%d", runID, index)
		receipt, err := r.checkout(shopperID, key)
		if err != nil {
			return fail(err)
		}
		if receipt.OrderID == "" {
			scenarioStatus = http.StatusInternalServerError
			return errors.New("checkout returned empty order id")
		}
	}

	return nil
}

func (r *scenarioRunner) addToCart(shopperID, itemID string) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	status, err := r.client.doJSON(ctx, http.MethodPost, "/cart/items",
		map[string]string{headerUserID: shopperID},
		map[string]any{"item_id": itemID, "quantity": defaultQty}, nil)
	r.stats.observe("AddToCart", time.Since(start), status)
	return err
}

func (r *scenarioRunner) priceQuote(shopperID, itemID string) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	status, err := r.client.doJSON(ctx, http.MethodPost, "/price/quote",
		map[string]string{headerUserID: shopperID},
		map[string]any{"item_id": itemID, "quantity": defaultQty}, nil)
	r.stats.observe("PriceQuote", time.Since(start), status)
	return err
}

type checkoutReceipt struct {
	OrderID    string `json:"order_id"`
	TotalMinor int64  `json:"total_minor"`
}

func (r *scenarioRunner) checkout(shopperID, key string) (*checkoutReceipt, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var receipt checkoutReceipt
	status, err := r.client.doJSON(ctx, http.MethodPost, "/checkout",
		map[string]string{headerUserID: shopperID, headerIdempotency: key},
		map[string]any{}, &receipt)
	r.stats.observe("Checkout", time.Since(start), status)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// callStatus возвращает HTTP-статус, стоящий за ошибкой вызова.
// Ноль означает транспортную ошибку без ответа сервера.
func callStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return 0
}

func statusLabel(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

func shouldCheckoutScenario(index, rate int) bool {
	if rate >= 100 {
		return true
	}
	return rate > 0 && index%100 < rate
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("report path escapes the working directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, data, 0o600)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios,
		result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)

	lat := result.ScenarioLatencyMs
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	for _, name := range names {
		m := result.Methods[name]
		fmt.Printf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func summarizeLatencies(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	n := len(sorted)
	return latencySummary{
		Min: sorted[0],
		Avg: sum / float64(n),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
		Max: sorted[n-1],
	}
}

// percentile интерполирует значение между соседними наблюдениями,
// вход должен быть отсортирован по возрастанию.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(rank)
	frac := rank - float64(lower)
	if frac == 0 || lower+1 >= len(sorted) {
		return sorted[lower]
	}
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}

func ratio(failed, total int64) float64 {
	if total > 0 {
		return float64(failed) / float64(total)
	}
	return 0
}
