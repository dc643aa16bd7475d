package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-gateway/internal/logging"
)

type SimConfig struct {
	GatewayURL  string
	ClinicID    string
	Duration    time.Duration
	Workers     int
	CreateRatio float64
	UpdateRatio float64
	ReadRatio   float64
	Patients    int
	Doctors     int
}

// DataPool holds the fake parties drafts are built from and the ids of
// appointments created during the run.
type DataPool struct {
	Patients []party
	Doctors  []party

	mu           sync.RWMutex
	appointments []string
}

type party struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 400:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, lo, hi, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Create   OperationMetrics
	Update   OperationMetrics
	ReadByID OperationMetrics
	List     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	logger, err := logging.New("dev", getEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.String("gateway", cfg.GatewayURL),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("create", cfg.CreateRatio),
		zap.Float64("update", cfg.UpdateRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config: cfg,
		pool:   buildDataPool(cfg),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		GatewayURL:  strings.TrimRight(getEnv("SIM_GATEWAY_URL", "http://localhost:8080"), "/"),
		ClinicID:    os.Getenv("SIM_CLINIC_ID"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		CreateRatio: getFloat("SIM_CREATE_RATIO", 0.3),
		UpdateRatio: getFloat("SIM_UPDATE_RATIO", 0.1),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.6),
		Patients:    getInt("SIM_PATIENTS", 500),
		Doctors:     getInt("SIM_DOCTORS", 20),
	}

	total := cfg.CreateRatio + cfg.UpdateRatio + cfg.ReadRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.UpdateRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if _, err := url.ParseRequestURI(cfg.GatewayURL); err != nil {
		return fmt.Errorf("SIM_GATEWAY_URL is invalid: %w", err)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 || cfg.Doctors <= 0 {
		return fmt.Errorf("SIM_PATIENTS and SIM_DOCTORS must be > 0")
	}
	return nil
}

func buildDataPool(cfg SimConfig) *DataPool {
	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Pediatrics",
		"Neurology",
	}

	dp := &DataPool{}
	for i := 0; i < cfg.Patients; i++ {
		dp.Patients = append(dp.Patients, party{
			ID:    uuid.NewString(),
			Name:  gofakeit.Name(),
			Phone: gofakeit.Phone(),
		})
	}
	for i := 0; i < cfg.Doctors; i++ {
		dp.Doctors = append(dp.Doctors, party{
			ID:             uuid.NewString(),
			Name:           "Dr " + gofakeit.LastName(),
			Specialization: specialties[gofakeit.Number(0, len(specialties)-1)],
		})
	}
	return dp
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.CreateRatio:
			s.doCreate(ctx, rng)
		case r < s.config.CreateRatio+s.config.UpdateRatio:
			s.doUpdate(ctx, rng)
		case rng.Intn(2) == 0:
			s.doReadByID(ctx, rng)
		default:
			s.doList(ctx, rng)
		}
	}
}

func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	// Half-hour slots over the next two weeks, so some drafts collide.
	start := time.Now().UTC().Truncate(30 * time.Minute).Add(time.Duration(rng.Intn(14*16)+1) * 30 * time.Minute)

	draft := map[string]any{
		"patientId":   patient,
		"doctorId":    doctor,
		"startTime":   start.Format(time.RFC3339),
		"serviceType": gofakeit.RandomString([]string{"consultation", "follow-up", "check-up"}),
		"notes":       gofakeit.Sentence(6),
	}

	status, body, latency, err := s.send(ctx, http.MethodPost, "/appointments", draft)
	s.metrics.Create.Record(latency, status, err)

	if err == nil && status == http.StatusCreated {
		var created struct {
			ObjectID string `json:"_id"`
			ID       string `json:"id"`
		}
		if json.Unmarshal(body, &created) == nil {
			if id := firstNonEmpty(created.ObjectID, created.ID); id != "" {
				s.pool.AddAppointment(id)
			}
		}
	}
}

func (s *Simulator) doUpdate(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	patch := map[string]any{
		"status": gofakeit.RandomString([]string{"confirmed", "cancelled", "completed"}),
	}
	status, _, latency, err := s.send(ctx, http.MethodPut, "/appointments/"+url.PathEscape(id), patch)
	s.metrics.Update.Record(latency, status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, _, latency, err := s.send(ctx, http.MethodGet, "/appointments/"+url.PathEscape(id), nil)
	s.metrics.ReadByID.Record(latency, status, err)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	q := url.Values{}
	q.Set("startDate", time.Now().UTC().Format(time.DateOnly))
	if rng.Intn(3) == 0 {
		q.Set("status", "scheduled,confirmed")
	}
	if rng.Intn(4) == 0 {
		q.Set("doctorId", s.pool.Doctors[rng.Intn(len(s.pool.Doctors))].ID)
	}
	status, _, latency, err := s.send(ctx, http.MethodGet, "/appointments?"+q.Encode(), nil)
	s.metrics.List.Record(latency, status, err)
}

func (s *Simulator) send(ctx context.Context, method, path string, payload any) (int, []byte, time.Duration, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.GatewayURL+path, body)
	if err != nil {
		return 0, nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.ClinicID != "" {
		req.Header.Set("X-Clinic-ID", s.config.ClinicID)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, latency, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Create", &s.metrics.Create)
	printOperationReport("Update", &s.metrics.Update)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, percent(success, total))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, percent(conflict, total))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, percent(failed, total))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func percent(n, total int64) float64 {
	return float64(n) / float64(total) * 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
