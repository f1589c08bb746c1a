// Benchmark tool for measuring ChainFlow fraud scoring against labelled data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/transactions.csv -url http://localhost:8080
//	go run ./cmd/benchmark -generate 2000 -seed 7
//
// The CSV needs a header with the seven feature columns (amount,
// delivery_time_hours, supplier_trust_score, route_deviation_km,
// temperature_variance, documentation_completeness, payment_delay_hours) and
// an is_fraud column holding 0 or 1. Each row is posted to /fraud/assess and
// the verdict (probability >= threshold) is compared with the label.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/scoring"
)

const labelColumn = "is_fraud"

// Sample is one labelled transaction.
type Sample struct {
	Attrs   domain.TransactionAttributes
	IsFraud bool
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud scored at or above the threshold
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64 // Missed fraud

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64
	TotalDegraded  int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled transaction CSV")
	generate := flag.Int("generate", 0, "Generate this many synthetic samples instead of reading a CSV")
	seed := flag.Uint64("seed", 7, "Seed for -generate")
	fraudRatio := flag.Float64("fraud-ratio", 0.1, "Fraud share for -generate")
	baseURL := flag.String("url", "http://localhost:8080", "ChainFlow base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum samples to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 0.5, "Probability at or above which a sample counts as flagged")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" && *generate <= 0 {
		fmt.Println("Usage: benchmark -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("       benchmark -generate 2000 [-seed 7]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=================================================================")
	fmt.Println("           CHAINFLOW BENCHMARK - Fraud Risk Scoring")
	fmt.Println("=================================================================")
	fmt.Printf("\nChainFlow URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Printf("Threshold:     %.2f\n", *threshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: ChainFlow not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure ChainFlow is running:")
		fmt.Println("  go run ./cmd/chainflow")
		os.Exit(1)
	}
	fmt.Println("ChainFlow is healthy")

	var samples []Sample
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading samples from %s...\n", *csvPath)
		samples, err = readSamplesCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("\nGenerating %d synthetic samples (seed %d)...\n", *generate, *seed)
		samples = generateSamples(*generate, *seed, *fraudRatio)
	}
	if len(samples) == 0 {
		fmt.Println("ERROR: no samples to process")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d samples\n", len(samples))

	fraudCount := 0
	for _, s := range samples {
		if s.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(samples)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(samples)-fraudCount, 100*float64(len(samples)-fraudCount)/float64(len(samples)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	m := runBenchmark(samples, *baseURL, *tenantID, *workers, *threshold, *verbose)
	printResults(m, time.Since(startTime))
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

func readSamplesCSV(path string, limit int) ([]Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseSamples(file, limit)
}

// parseSamples reads a header row and then one sample per row. Malformed rows
// are skipped.
func parseSamples(r io.Reader, limit int) ([]Sample, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, name := range append(domain.FeatureNames[:], labelColumn) {
		if _, ok := colIndex[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		var features [domain.FeatureCount]float64
		ok := true
		for i, name := range domain.FeatureNames {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[colIndex[name]]), 64)
			if err != nil {
				ok = false
				break
			}
			features[i] = v
		}
		if !ok {
			continue
		}

		samples = append(samples, Sample{
			Attrs:   attrsFromFeatures(features[:]),
			IsFraud: strings.TrimSpace(record[colIndex[labelColumn]]) == "1",
		})
		if limit > 0 && len(samples) >= limit {
			break
		}
	}
	return samples, nil
}

func generateSamples(n int, seed uint64, fraudRatio float64) []Sample {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	ds := scoring.GenerateDataset(rng, n, fraudRatio)

	samples := make([]Sample, ds.Len())
	for i := range samples {
		samples[i] = Sample{
			Attrs:   attrsFromFeatures(ds.X[i]),
			IsFraud: ds.Y[i] == 1,
		}
	}
	return samples
}

// attrsFromFeatures maps a vector in FeatureNames order back to attributes.
func attrsFromFeatures(f []float64) domain.TransactionAttributes {
	return domain.TransactionAttributes{
		Amount:                    f[0],
		DeliveryTimeHours:         f[1],
		SupplierTrustScore:        f[2],
		RouteDeviationKm:          f[3],
		TemperatureVariance:       f[4],
		DocumentationCompleteness: f[5],
		PaymentDelayHours:         f[6],
	}
}

func runBenchmark(samples []Sample, baseURL, tenantID string, numWorkers int, threshold float64, verbose bool) *Metrics {
	m := &Metrics{}

	work := make(chan Sample, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := assess(client, baseURL, tenantID, s.Attrs)
				atomic.AddInt64(&m.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}
				m.record(s.IsFraud, result, threshold)

				if verbose {
					fmt.Printf("amount %12.2f | fraud %-5v | p=%.3f %-6s | degraded %v\n",
						s.Attrs.Amount, s.IsFraud, result.Probability, result.RiskLevel, result.Degraded)
				}
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)
	wg.Wait()

	return m
}

func (m *Metrics) record(actual bool, result *domain.FraudAssessment, threshold float64) {
	if result.Degraded {
		atomic.AddInt64(&m.TotalDegraded, 1)
	}
	if actual {
		atomic.AddInt64(&m.TotalFraud, 1)
	} else {
		atomic.AddInt64(&m.TotalNonFraud, 1)
	}

	predicted := result.Probability >= threshold
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

func assess(client *http.Client, baseURL, tenantID string, attrs domain.TransactionAttributes) (*domain.FraudAssessment, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/fraud/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.FraudAssessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Scores derived from the confusion matrix. Zero denominators yield 0.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
	Accuracy  float64
}

func (m *Metrics) Scores() Scores {
	var s Scores
	if m.TruePositives+m.FalsePositives > 0 {
		s.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		s.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		s.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	return s
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=================================================================")
	fmt.Println("                        BENCHMARK RESULTS")
	fmt.Println("=================================================================")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Degraded:         %d\n", m.TotalDegraded)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   Flagged     Clear")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  F  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("          NF  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

	s := m.Scores()
	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", s.Precision)
	fmt.Printf("   Recall:     %.4f\n", s.Recall)
	fmt.Printf("   F1-Score:   %.4f\n", s.F1)
	fmt.Printf("   Accuracy:   %.4f\n", s.Accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", tps)
	}

	if m.TotalDegraded > 0 {
		fmt.Println("\n   WARNING: the server scored with the constant fallback model;")
		fmt.Println("   probabilities are fixed and the metrics above are not meaningful.")
	}
	fmt.Println()
}
