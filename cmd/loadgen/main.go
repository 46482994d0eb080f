// Load generator for exercising a running Kestrel instance.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -n 10000 -workers 10
//
// This tool:
//   1. Generates synthetic account records with realistic score fields
//   2. Sends each to POST /evaluate as an inline record
//   3. Reports latency, throughput, tier distribution, and flag rates
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// EvaluateRequest mirrors the Kestrel API request format.
type EvaluateRequest struct {
	RecordID   string         `json:"recordId"`
	ObjectType string         `json:"objectType"`
	Role       string         `json:"role,omitempty"`
	Record     map[string]any `json:"record"`
}

// EvaluateResponse mirrors the Kestrel API response format.
type EvaluateResponse struct {
	AssessmentID string   `json:"assessmentId"`
	Flags        []string `json:"flags"`
	Score        int      `json:"score"`
	Tier         string   `json:"tier"`
}

// Metrics tracks load run results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalFlagged   int64
	LatencySumMs   int64

	mu    sync.Mutex
	tiers map[string]int64
	flags map[string]int64
}

func (m *Metrics) record(resp *EvaluateResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[resp.Tier]++
	for _, f := range resp.Flags {
		m.flags[f]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	orgID := flag.String("org", "loadgen-test", "Org ID for requests")
	count := flag.Int("n", 10000, "Number of records to evaluate")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	role := flag.String("role", "", "Role to score as (empty = default)")
	seed := flag.Int64("seed", 42, "RNG seed for record generation")
	verbose := flag.Bool("verbose", false, "Print each record result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL LOADGEN - Synthetic Account Scoring        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Org ID:      %s\n", *orgID)
	fmt.Printf("Records:     %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	if *role != "" {
		fmt.Printf("Role:        %s\n", *role)
	}
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	fmt.Printf("\nRunning load with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoad(*baseURL, *orgID, *role, *count, *workers, *seed, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateRecord builds a synthetic account. Roughly a quarter of records
// get a weak health score so risk rules keyed on it have something to flag.
func generateRecord(rng *rand.Rand, i int) map[string]any {
	health := 50 + rng.Float64()*50
	if rng.Float64() < 0.25 {
		health = rng.Float64() * 50
	}

	renewal := time.Now().AddDate(0, rng.Intn(12), rng.Intn(28))

	return map[string]any{
		"Name":                        fmt.Sprintf("Synthetic Account %06d", i),
		"Intent_Score__c":             rng.Float64() * 100,
		"Current_Gainsight_Score__c":  health,
		"Renewal_Date__c":             renewal.Format("2006-01-02"),
		"Open_Opportunity_Count__c":   rng.Intn(8),
		"Days_Since_Last_Activity__c": rng.Intn(120),
		"Industry":                    []string{"Technology", "Finance", "Healthcare", "Retail"}[rng.Intn(4)],
	}
}

func runLoad(baseURL, orgID, role string, count, numWorkers int, seed int64, verbose bool) *Metrics {
	metrics := &Metrics{
		tiers: make(map[string]int64),
		flags: make(map[string]int64),
	}

	work := make(chan EvaluateRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := evaluateRecord(client, baseURL, orgID, req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.LatencySumMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.RecordID, err)
					}
					continue
				}

				if len(result.Flags) > 0 {
					atomic.AddInt64(&metrics.TotalFlagged, 1)
				}
				metrics.record(result)

				if verbose {
					fmt.Printf("%-24s | Score: %3d | Tier: %-12s | Flags: %v\n",
						req.RecordID, result.Score, result.Tier, result.Flags)
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < count; i++ {
		work <- EvaluateRequest{
			RecordID:   fmt.Sprintf("loadgen-%06d", i),
			ObjectType: "Account",
			Role:       role,
			Record:     generateRecord(rng, i),
		}
	}
	close(work)

	wg.Wait()
	return metrics
}

func evaluateRecord(client *http.Client, baseURL, orgID string, req EvaluateRequest) (*EvaluateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Org-ID", orgID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        LOAD RESULTS                           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 RUN STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Flagged:          %d\n", m.TotalFlagged)

	fmt.Printf("\n🌡️  TIER DISTRIBUTION\n")
	m.mu.Lock()
	for _, tier := range []string{"hot", "warm", "cool", "cold", "unclassified"} {
		if n, ok := m.tiers[tier]; ok {
			pct := 100 * float64(n) / float64(m.TotalProcessed)
			fmt.Printf("   %-12s %8d (%.2f%%)\n", tier, n, pct)
		}
	}

	if len(m.flags) > 0 {
		fmt.Printf("\n🚩 FLAG DISTRIBUTION\n")
		for flag, n := range m.flags {
			fmt.Printf("   %-12s %8d\n", flag, n)
		}
	}
	m.mu.Unlock()

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.LatencySumMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f rec/sec\n", rps)
	}

	fmt.Println()
}
