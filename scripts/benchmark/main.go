package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/pricescout/models"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:10000", "pricescout API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "Number of runs per query for averaging")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
	queries = flag.String("queries", "rtx 4090,ryzen 7 7800x3d,ddr5 32gb,nvme ssd 2tb,27 inch monitor", "Comma-separated search queries")
)

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	TotalMs    int64  `json:"total_ms"`
	FetchMs    int64  `json:"fetch_ms"`
	ExtractMs  int64  `json:"extract_ms"`
	Count      int    `json:"count"`
	EngineUsed string `json:"engine_used"`
	Attempts   int    `json:"attempts"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type queryAverages struct {
	TotalMs   float64 `json:"total_ms"`
	FetchMs   float64 `json:"fetch_ms"`
	ExtractMs float64 `json:"extract_ms"`
	Count     float64 `json:"count"`
}

type queryResult struct {
	Query    string         `json:"query"`
	Runs     []runResult    `json:"runs"`
	Averages *queryAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp    string        `json:"timestamp"`
	APIURL       string        `json:"api_url"`
	RunsPerQuery int           `json:"runs_per_query"`
	Results      []queryResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pricescout benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/query: %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		APIURL:       *apiURL,
		RunsPerQuery: *runs,
	}

	client := &http.Client{Timeout: 180 * time.Second}
	for _, q := range strings.Split(*queries, ",") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		fmt.Printf("Benchmarking %q ...\n", q)
		qr := queryResult{Query: q}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkQuery(client, q, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d results via %s\n", rr.TotalMs, rr.Count, rr.EngineUsed)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			qr.Runs = append(qr.Runs, rr)
		}

		qr.Averages = computeAverages(qr.Runs)
		report.Results = append(report.Results, qr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkQuery(client *http.Client, query string, run int) runResult {
	rr := runResult{Run: run}

	req, err := http.NewRequest(http.MethodGet, *apiURL+"/scrape?"+url.Values{"q": {query}}.Encode(), nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rr.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return rr
	}

	var out models.PipelineOutcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.TotalMs = out.Timing.TotalMs
	rr.FetchMs = out.Timing.FetchMs
	rr.ExtractMs = out.Timing.ExtractMs
	rr.Count = out.Count
	rr.EngineUsed = out.EngineUsed
	rr.Attempts = len(out.Attempts)
	if out.Diagnostic != nil {
		rr.Diagnostic = out.Diagnostic.Kind
	}
	rr.Success = out.Error == ""
	rr.Error = out.Error
	return rr
}

func computeAverages(runs []runResult) *queryAverages {
	var successCount int
	var avg queryAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.FetchMs += float64(r.FetchMs)
		avg.ExtractMs += float64(r.ExtractMs)
		avg.Count += float64(r.Count)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.FetchMs /= n
	avg.ExtractMs /= n
	avg.Count /= n
	return &avg
}

func printTable(results []queryResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Query\tAvg Latency\tAvg Fetch\tAvg Results\tEngine\n")
	fmt.Fprintf(w, "─────\t───────────\t─────────\t───────────\t──────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", truncate(r.Query, 30))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.1f\t%s\n",
			truncate(r.Query, 30),
			int64(r.Averages.TotalMs),
			int64(r.Averages.FetchMs),
			r.Averages.Count,
			dominantEngine(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

// dominantEngine returns the strategy that served most successful runs.
func dominantEngine(runs []runResult) string {
	counts := map[string]int{}
	for _, r := range runs {
		if r.Success {
			counts[r.EngineUsed]++
		}
	}
	best, bestCount := "", 0
	for engine, count := range counts {
		if count > bestCount || (count == bestCount && engine < best) {
			best = engine
			bestCount = count
		}
	}
	return best
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
