package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Movement committed
	fail422       uint64 // Insufficient funds / invalid amount
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// worker logs in as one seeded user and alternates deposits and withdrawals.
// Under the hotspot workload every worker shares account 0, turning the
// per-account row lock into the contended resource.
func worker(wg *sync.WaitGroup, id int, start time.Time) {
	defer wg.Done()

	user := id
	if workload == "hotspot" {
		user = 0
	}

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: 5 * time.Second, Jar: jar}

	if err := login(client, user); err != nil {
		log.Printf("worker %d login failed: %v", id, err)
		return
	}

	for time.Since(start) < duration {
		endpoint := "/deposit"
		if rand.Float32() < 0.5 {
			endpoint = "/withdraw"
		}

		payload := map[string]interface{}{
			"amount":      "1.00",
			"description": "bench",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+endpoint, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func login(client *http.Client, user int) error {
	payload := map[string]string{
		"username": fmt.Sprintf("bench-user-%04d", user),
		"password": "benchmark-password",
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(targetURL+"/login", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("login status %d", resp.StatusCode)
	}
	return nil
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"movements_created": s201,
		"business_rejects":  f422,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
