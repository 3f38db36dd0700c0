package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	BookingRatio      float64
	StatusRatio       float64
	ReadRatio         float64
	PatientLimit      int
	ProfessionalLimit int // small values concentrate bookings and provoke lock contention
	PostgresDSN       string
	JWTSecret         string
}

type patientRef struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

type window struct {
	Start time.Time
	End   time.Time
}

type professionalRef struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Blocks []window
}

type appointmentRef struct {
	ID             uuid.UUID
	Patient        patientRef
	ProfessionalID uuid.UUID
	ProfUserID     uuid.UUID
}

type DataPool struct {
	Patients      []patientRef
	Professionals []professionalRef
	mu            sync.RWMutex
	appointments  []appointmentRef
}

func (dp *DataPool) AddAppointment(a appointmentRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (appointmentRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return appointmentRef{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeNoAvailability
	outcomeError
)

type OperationMetrics struct {
	Total          int64
	Success        int64
	Conflict       int64
	NoAvailability int64
	Error          int64
	Latencies      []time.Duration
	mu             sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeNoAvailability:
		atomic.AddInt64(&om.NoAvailability, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95, p99 time.Duration) {
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

	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95), pct(99)
}

type Metrics struct {
	Booking          OperationMetrics
	StatusUpdate     OperationMetrics
	ReadByID         OperationMetrics
	ListAvailability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	cfg, logger := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("status", cfg.StatusRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "clinic-simulate", MaxConns: 2})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("professionals", len(dataPool.Professionals)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, zerolog.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "prod")
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.LogLevel, baseCfg.Env).With().Str("service", "simulate").Logger()

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.5),
		StatusRatio:       getFloat("SIM_STATUS_RATIO", 0.2),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:      getInt("SIM_PATIENT_LIMIT", 4000),
		ProfessionalLimit: getInt("SIM_PROFESSIONAL_LIMIT", 5),
		PostgresDSN:       baseCfg.PostgresDSN,
		JWTSecret:         baseCfg.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, logger
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to mint caller tokens")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id, user_id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var p patientRef
		if err := rows.Scan(&p.ID, &p.UserID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, p)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT mp.id, mp.user_id, a.start_time, a.end_time
		FROM medical_professionals mp
		JOIN availabilities a ON a.professional_id = mp.id
		WHERE a.is_booked = false AND a.end_time > now()
		  AND mp.id IN (SELECT id FROM medical_professionals ORDER BY created_at, id LIMIT $1)
		ORDER BY mp.id, a.start_time
	`, cfg.ProfessionalLimit)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	byID := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			id, userID uuid.UUID
			w          window
		)
		if err := rows.Scan(&id, &userID, &w.Start, &w.End); err != nil {
			rows.Close()
			return nil, err
		}
		idx, ok := byID[id]
		if !ok {
			idx = len(dataPool.Professionals)
			byID[id] = idx
			dataPool.Professionals = append(dataPool.Professionals, professionalRef{ID: id, UserID: userID})
		}
		dataPool.Professionals[idx].Blocks = append(dataPool.Professionals[idx].Blocks, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded")
	}
	if len(dataPool.Professionals) == 0 {
		return nil, errors.New("no open availability loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.StatusRatio:
				s.doStatusUpdate(ctx, rng)
			case rng.Intn(2) == 0:
				s.doReadByID(ctx, rng)
			default:
				s.doListAvailability(ctx, rng)
			}
		}
	}
}

// pickWindow chooses a one-hour visit on a random day inside one of the
// professional's blocks as they were at load time. Earlier bookings may have
// consumed it, which surfaces as no_availability.
func pickWindow(rng *rand.Rand, prof professionalRef) window {
	b := prof.Blocks[rng.Intn(len(prof.Blocks))]
	days := int(b.End.Sub(b.Start) / (24 * time.Hour))
	start := b.Start.Add(time.Duration(rng.Intn(days+1)) * 24 * time.Hour)
	end := start.Add(time.Hour)
	if end.After(b.End) {
		end = b.End
	}
	return window{Start: start, End: end}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	prof := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]
	w := pickWindow(rng, prof)

	body, _ := json.Marshal(api.BookAppointmentRequest{
		MedicalProfessionalID: prof.ID.String(),
		StartTime:             &w.Start,
		EndTime:               &w.End,
	})

	start := time.Now()
	status, errBody, respBody, err := s.call(ctx, http.MethodPost, "/appointments/book", s.patientClaims(patient), body)
	latency := time.Since(start)

	o := classify(status, errBody, err, http.StatusCreated)
	if o == outcomeSuccess {
		var appt api.AppointmentResponse
		if json.Unmarshal(respBody, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appointmentRef{
				ID:             appt.ID,
				Patient:        patient,
				ProfessionalID: prof.ID,
				ProfUserID:     prof.UserID,
			})
		}
	}

	s.metrics.Booking.Record(latency, o)
}

func (s *Simulator) doStatusUpdate(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	statuses := []string{"Accepted", "Active", "Completed"}
	st := statuses[rng.Intn(len(statuses))]
	body, _ := json.Marshal(api.UpdateAppointmentRequest{Status: &st, IsStatusUpdate: true})

	claims := api.Claims{ProfessionalID: appt.ProfessionalID.String()}
	claims.Subject = appt.ProfUserID.String()

	start := time.Now()
	status, errBody, _, err := s.call(ctx, http.MethodPatch, "/appointments/staff/"+appt.ID.String(), claims, body)
	s.metrics.StatusUpdate.Record(time.Since(start), classify(status, errBody, err, http.StatusOK))
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, errBody, _, err := s.call(ctx, http.MethodGet, "/appointments/"+appt.ID.String(), s.patientClaims(appt.Patient), nil)
	s.metrics.ReadByID.Record(time.Since(start), classify(status, errBody, err, http.StatusOK))
}

func (s *Simulator) doListAvailability(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	prof := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]

	start := time.Now()
	status, errBody, _, err := s.call(ctx, http.MethodGet,
		"/appointments/availabilities?medical_professional_id="+prof.ID.String(), s.patientClaims(patient), nil)
	s.metrics.ListAvailability.Record(time.Since(start), classify(status, errBody, err, http.StatusOK))
}

func (s *Simulator) patientClaims(p patientRef) api.Claims {
	c := api.Claims{PatientID: p.ID.String()}
	c.Subject = p.UserID.String()
	return c
}

// call sends an authenticated request and returns the status, the decoded
// error body for non-2xx responses and the raw body.
func (s *Simulator) call(ctx context.Context, method, path string, claims api.Claims, body []byte) (int, api.ErrorResponse, []byte, error) {
	var errResp api.ErrorResponse

	token, err := api.SignToken(s.config.JWTSecret, claims, time.Minute)
	if err != nil {
		return 0, errResp, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, errResp, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errResp, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, errResp, nil, err
	}
	if resp.StatusCode >= 300 {
		_ = json.Unmarshal(buf.Bytes(), &errResp)
	}
	return resp.StatusCode, errResp, buf.Bytes(), nil
}

func classify(status int, errBody api.ErrorResponse, err error, want int) outcome {
	switch {
	case err != nil:
		return outcomeError
	case status == want:
		return outcomeSuccess
	case status == http.StatusConflict && errBody.Error == "no_availability":
		return outcomeNoAvailability
	case status == http.StatusConflict:
		return outcomeConflict
	}
	return outcomeError
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Professionals under load: %d\n", len(s.pool.Professionals))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Status update", &s.metrics.StatusUpdate)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List availability", &s.metrics.ListAvailability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	noAvail := atomic.LoadInt64(&om.NoAvailability)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if noAvail > 0 {
		fmt.Printf("  No availability: %d (%.1f%%)\n", noAvail, pct(noAvail))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
