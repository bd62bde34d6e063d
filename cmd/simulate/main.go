package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointment-booking/pkg/logging"
)

// SimConfig drives a contention run: every round picks one free slot and fires Contenders
// concurrent reserves at it, rotating through the booking channels.
type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	Contenders  int
	Patients    int
	CancelRatio float64
	Specialty   string
}

var channels = []string{"chat", "voice", "web"}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
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

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reserve OperationMetrics
	Cancel  OperationMetrics
	Rebook  OperationMetrics
}

type slotRef struct {
	ProviderID string
	Provider   string
	Date       string
	Time       string
}

func (s slotRef) String() string {
	return fmt.Sprintf("%s %s %s", s.Provider, s.Date, s.Time)
}

// roundResult is what one contended slot produced.
type roundResult struct {
	Slot      slotRef
	Winners   []reserved
	Conflicts int
	Errors    int
}

type reserved struct {
	ID      string `json:"id"`
	Serial  string `json:"serial_number"`
	Channel string `json:"channel"`
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	logger   zerolog.Logger
	metrics  Metrics
	patients []string
	results  []roundResult
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console")).
		With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Str("api", cfg.APIBaseURL).
		Int("rounds", cfg.Rounds).
		Int("contenders", cfg.Contenders).
		Float64("cancel_ratio", cfg.CancelRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := sim.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
	if ok := sim.PrintReport(); !ok {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Rounds:      getInt("SIM_ROUNDS", 20),
		Contenders:  getInt("SIM_CONTENDERS", 12),
		Patients:    getInt("SIM_PATIENTS", 50),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.25),
		Specialty:   os.Getenv("SIM_SPECIALTY"),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Rounds <= 0 {
		return errors.New("SIM_ROUNDS must be > 0")
	}
	if cfg.Contenders < 2 {
		return errors.New("SIM_CONTENDERS must be at least 2")
	}
	if cfg.Patients < cfg.Contenders {
		return errors.New("SIM_PATIENTS must be at least SIM_CONTENDERS")
	}
	if cfg.CancelRatio < 0 || cfg.CancelRatio > 1 {
		return errors.New("SIM_CANCEL_RATIO must be between 0 and 1")
	}
	return nil
}

func (s *Simulator) Run(ctx context.Context) error {
	if err := s.registerPatients(ctx); err != nil {
		return fmt.Errorf("register patients: %w", err)
	}
	slots, err := s.loadFreeSlots(ctx)
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	if len(slots) < s.config.Rounds {
		s.logger.Warn().Int("free_slots", len(slots)).Msg("fewer free slots than rounds, shortening run")
		s.config.Rounds = len(slots)
	}
	if s.config.Rounds == 0 {
		return errors.New("no free slots to contend for; run the seed command first")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	for i := 0; i < s.config.Rounds; i++ {
		res := s.contend(ctx, slots[i], rng)
		s.logger.Info().
			Str("slot", res.Slot.String()).
			Int("winners", len(res.Winners)).
			Int("conflicts", res.Conflicts).
			Int("errors", res.Errors).
			Msg("round complete")

		if len(res.Winners) == 1 && rng.Float64() < s.config.CancelRatio {
			s.cancelAndRebook(ctx, &res, rng)
		}
		s.results = append(s.results, res)
	}
	return nil
}

func (s *Simulator) registerPatients(ctx context.Context) error {
	ids := make([]string, s.config.Patients)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i := range ids {
		g.Go(func() error {
			var out struct {
				ID string `json:"id"`
			}
			status, err := s.doJSON(gctx, http.MethodPost, "/patients", map[string]string{
				"phone": fmt.Sprintf("+88019%08d", i),
				"name":  fmt.Sprintf("Simulated Patient %d", i),
			}, &out)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("register patient %d: status %d", i, status)
			}
			ids[i] = out.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.patients = ids
	s.logger.Info().Int("patients", len(ids)).Msg("patients registered")
	return nil
}

func (s *Simulator) loadFreeSlots(ctx context.Context) ([]slotRef, error) {
	var providers []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	path := "/providers"
	if s.config.Specialty != "" {
		path += "?specialty=" + url.QueryEscape(s.config.Specialty)
	}
	if _, err := s.doJSON(ctx, http.MethodGet, path, nil, &providers); err != nil {
		return nil, err
	}

	var out []slotRef
	for _, p := range providers {
		var resp struct {
			Slots []struct {
				Date   string `json:"date"`
				Time   string `json:"time"`
				Status string `json:"status"`
			} `json:"slots"`
		}
		if _, err := s.doJSON(ctx, http.MethodGet, "/providers/"+p.ID+"/slots", nil, &resp); err != nil {
			return nil, err
		}
		for _, sl := range resp.Slots {
			if sl.Status == "free" {
				out = append(out, slotRef{ProviderID: p.ID, Provider: p.Name, Date: sl.Date, Time: sl.Time})
			}
		}
	}
	s.logger.Info().Int("providers", len(providers)).Int("free_slots", len(out)).Msg("availability loaded")
	return out, nil
}

// contend releases all contenders at once so their reserves overlap as closely as possible.
func (s *Simulator) contend(ctx context.Context, sl slotRef, rng *rand.Rand) roundResult {
	res := roundResult{Slot: sl}
	patients := rng.Perm(len(s.patients))[:s.config.Contenders]

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i, pi := range patients {
		wg.Add(1)
		go func(channel, patientID string) {
			defer wg.Done()
			<-start

			var out reserved
			began := time.Now()
			status, err := s.doJSON(ctx, http.MethodPost, "/appointments", map[string]string{
				"provider_id": sl.ProviderID,
				"patient_id":  patientID,
				"date":        sl.Date,
				"time":        sl.Time,
				"symptoms":    "simulated contention",
				"channel":     channel,
			}, &out)
			s.metrics.Reserve.Record(time.Since(began), status)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Errors++
			case status == http.StatusCreated:
				res.Winners = append(res.Winners, out)
			case status == http.StatusConflict:
				res.Conflicts++
			default:
				res.Errors++
			}
		}(channels[i%len(channels)], s.patients[pi])
	}
	close(start)
	wg.Wait()
	return res
}

// cancelAndRebook cancels the round's winner and checks that the freed slot can be claimed again.
func (s *Simulator) cancelAndRebook(ctx context.Context, res *roundResult, rng *rand.Rand) {
	winner := res.Winners[0]

	began := time.Now()
	status, err := s.doJSON(ctx, http.MethodPost, "/appointments/"+winner.ID+"/cancel",
		map[string]string{"reason": "simulated cancellation"}, nil)
	s.metrics.Cancel.Record(time.Since(began), status)
	if err != nil || status != http.StatusOK {
		s.logger.Error().Err(err).Int("status", status).Str("serial", winner.Serial).Msg("cancel failed")
		return
	}

	var out reserved
	began = time.Now()
	status, err = s.doJSON(ctx, http.MethodPost, "/appointments", map[string]string{
		"provider_id": res.Slot.ProviderID,
		"patient_id":  s.patients[rng.Intn(len(s.patients))],
		"date":        res.Slot.Date,
		"time":        res.Slot.Time,
		"channel":     channels[rng.Intn(len(channels))],
	}, &out)
	s.metrics.Rebook.Record(time.Since(began), status)
	if err != nil || status != http.StatusCreated {
		s.logger.Error().Err(err).Int("status", status).Str("slot", res.Slot.String()).Msg("rebook after cancel failed")
		return
	}
	// The replacement is a new appointment with its own serial.
	res.Winners = append(res.Winners[:0], out)
}

func (s *Simulator) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// PrintReport prints the run and returns false if any slot had more than one winner or a
// serial number was issued twice.
func (s *Simulator) PrintReport() bool {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("CONTENTION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d\n", len(s.results))
	fmt.Printf("Contenders per slot: %d\n", s.config.Contenders)
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Rebook after cancel", &s.metrics.Rebook)

	ok := true
	serials := map[string]string{}
	byChannel := map[string]int{}
	var noWinner int

	for _, r := range s.results {
		switch len(r.Winners) {
		case 0:
			noWinner++
		case 1:
		default:
			ok = false
			fmt.Printf("DOUBLE BOOKING: %s has %d winners\n", r.Slot, len(r.Winners))
		}
		for _, w := range r.Winners {
			byChannel[w.Channel]++
			if prev, dup := serials[w.Serial]; dup {
				ok = false
				fmt.Printf("DUPLICATE SERIAL: %s issued for %s and %s\n", w.Serial, prev, r.Slot)
			}
			serials[w.Serial] = r.Slot.String()
		}
	}

	fmt.Printf("Winning channel split: chat=%d voice=%d web=%d\n", byChannel["chat"], byChannel["voice"], byChannel["web"])
	if noWinner > 0 {
		fmt.Printf("Slots with no winner (all contenders errored): %d\n", noWinner)
	}
	if ok {
		fmt.Println("RESULT: every contended slot had at most one winner and all serials are unique")
	} else {
		fmt.Println("RESULT: FAILED")
	}
	return ok
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
