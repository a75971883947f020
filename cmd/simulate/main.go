package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/guardportal/booking/internal/agreement"
	"github.com/guardportal/booking/internal/appointment"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Users        int
	BookingRatio float64
	ReadRatio    float64
	SourceID     string // Square sandbox nonce
	WebhookKey   string // when set, signed DocuSign callbacks are replayed for booked envelopes
	HTTPTimeout  time.Duration
}

type session struct {
	Email string
	Token string
}

type DataPool struct {
	Sessions     []session
	mu           sync.RWMutex
	appointments []bookedAppointment
}

type bookedAppointment struct {
	ID         string
	EnvelopeID string
	Session    session
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
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

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = percentile(latencies, 50)
	p95 = percentile(latencies, 95)
	p99 = percentile(latencies, 99)
	return avg, min, max, p50, p95, p99
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Signup   OperationMetrics
	Booking  OperationMetrics
	ReadByID OperationMetrics
	ListMine OperationMetrics
	Webhook  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: api=%s duration=%s workers=%d users=%d booking=%.2f read=%.2f webhook=%t",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.Users, cfg.BookingRatio, cfg.ReadRatio, cfg.WebhookKey != "")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	sim.signupUsers(ctx)
	if len(sim.pool.Sessions) == 0 {
		log.Fatal("no users could be signed up, is the API running?")
	}
	log.Printf("signed up %d users", len(sim.pool.Sessions))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Users:        getInt("SIM_USERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.6),
		SourceID:     getEnv("SIM_SOURCE_ID", "cnon:card-nonce-ok"),
		WebhookKey:   os.Getenv("DOCUSIGN_CONNECT_HMAC_KEY"),
		HTTPTimeout:  getDuration("SIM_HTTP_TIMEOUT", 60*time.Second),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Users <= 0 {
		return fmt.Errorf("SIM_USERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func (s *Simulator) signupUsers(ctx context.Context) {
	runID := strconv.FormatInt(time.Now().Unix(), 36)

	for i := 0; i < s.config.Users; i++ {
		email := fmt.Sprintf("sim-%s-%d@guardportal.test", runID, i)
		start := time.Now()

		var resp struct {
			Token string `json:"token"`
		}
		status, err := s.doJSON(ctx, http.MethodPost, "/api/auth/signup", "", map[string]string{
			"email":     email,
			"password":  "simulate-" + runID,
			"firstName": gofakeit.FirstName(),
			"lastName":  gofakeit.LastName(),
		}, &resp)

		ok := err == nil && status == http.StatusCreated && resp.Token != ""
		s.metrics.Signup.Record(time.Since(start), ok, status == http.StatusTooManyRequests)
		if ok {
			s.pool.Sessions = append(s.pool.Sessions, session{Email: email, Token: resp.Token})
		}
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng)
				continue
			}
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doListMine(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sess := s.pool.Sessions[rng.Intn(len(s.pool.Sessions))]
	date := time.Now().AddDate(0, 0, 2+rng.Intn(30)).Format(time.DateOnly)

	start := time.Now()

	var resp struct {
		Appointment struct {
			ID                 string  `json:"id"`
			DocusignEnvelopeID *string `json:"docusignEnvelopeId"`
		} `json:"appointment"`
	}
	status, err := s.doJSON(ctx, http.MethodPost, "/api/appointments", sess.Token, map[string]any{
		"fullName":        gofakeit.Name(),
		"email":           sess.Email,
		"phone":           gofakeit.Phone(),
		"address":         gofakeit.Street() + ", " + gofakeit.City(),
		"preferredDate":   date,
		"preferredTime":   appointment.TimeWindows[rng.Intn(len(appointment.TimeWindows))],
		"isReady":         true,
		"paymentSourceId": s.config.SourceID,
	}, &resp)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
	if !success || resp.Appointment.ID == "" {
		return
	}

	booked := bookedAppointment{ID: resp.Appointment.ID, Session: sess}
	if resp.Appointment.DocusignEnvelopeID != nil {
		booked.EnvelopeID = *resp.Appointment.DocusignEnvelopeID
	}
	s.pool.AddAppointment(booked)

	if s.config.WebhookKey != "" && booked.EnvelopeID != "" {
		s.doWebhook(ctx, booked.EnvelopeID, rng)
	}
}

func (s *Simulator) doWebhook(ctx context.Context, envelopeID string, rng *rand.Rand) {
	status := "completed"
	if rng.Intn(5) == 0 {
		status = "declined"
	}
	body, _ := json.Marshal(map[string]string{"envelopeId": envelopeID, "status": status})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/docusign/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(agreement.SignatureHeader, agreement.SignConnectPayload(body, s.config.WebhookKey))

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.Webhook.Record(latency, success, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.doJSON(ctx, http.MethodGet, "/api/appointments/"+appt.ID, appt.Session.Token, nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	sess := s.pool.Sessions[rng.Intn(len(s.pool.Sessions))]

	start := time.Now()
	status, err := s.doJSON(ctx, http.MethodGet, "/api/appointments/my", sess.Token, nil, nil)
	s.metrics.ListMine.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// doJSON sends body as JSON and decodes the response into out when out is
// non-nil and the call succeeded.
func (s *Simulator) doJSON(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Users: %d\n", len(s.pool.Sessions))
	fmt.Println()

	printOperationReport("Signup", &s.metrics.Signup)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List mine", &s.metrics.ListMine)
	printOperationReport("DocuSign webhook", &s.metrics.Webhook)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
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
