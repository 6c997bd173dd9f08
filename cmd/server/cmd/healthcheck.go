package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

Used by container HEALTHCHECK directives. Exits 0 when the server reports
"healthy" or "degraded", non-zero otherwise.

Examples:
  # Check the local server
  server healthcheck

  # Check a remote server with retries and JSON output
  server healthcheck --url https://skills.example.com/health --retries 3 --format json`,
		RunE: runHealthcheck,
	}

	healthcheckTimeout time.Duration
	healthcheckURL     string
	healthcheckRetries int
	healthcheckFormat  string
	healthcheckBackoff = time.Second
)

func init() {
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "per-attempt timeout")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	healthcheckCmd.Flags().IntVar(&healthcheckRetries, "retries", 1, "attempts before giving up")
	healthcheckCmd.Flags().StringVar(&healthcheckFormat, "format", "text", "output format (text, json)")
}

// HealthResponse is the body served by /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is the outcome of one health check attempt.
type HealthCheckResult struct {
	URL        string                 `json:"url"`
	Status     string                 `json:"status,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
	IsHealthy  bool                   `json:"healthy"`
	LatencyMs  int64                  `json:"latency_ms"`
	Attempts   int                    `json:"attempts"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	result := performHealthCheckWithRetries(healthCheckURL())
	if err := outputResult(cmd.OutOrStdout(), result, healthcheckFormat); err != nil {
		return err
	}
	if !result.IsHealthy {
		cmd.SilenceUsage = true
		if result.Error != "" {
			return fmt.Errorf("unhealthy: %s", result.Error)
		}
		return fmt.Errorf("unhealthy: status=%s", result.Status)
	}
	return nil
}

func healthCheckURL() string {
	if healthcheckURL != "" {
		return healthcheckURL
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

func performHealthCheck(url string) HealthCheckResult {
	result := HealthCheckResult{URL: url, Attempts: 1}

	timeout := healthcheckTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	result.StatusCode = resp.StatusCode

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("invalid response (HTTP %d): %v", resp.StatusCode, err)
		return result
	}
	result.Status = body.Status
	result.Checks = body.Checks
	result.IsHealthy = resp.StatusCode == http.StatusOK && (body.Status == "healthy" || body.Status == "degraded")
	return result
}

func performHealthCheckWithRetries(url string) HealthCheckResult {
	attempts := healthcheckRetries
	if attempts < 1 {
		attempts = 1
	}

	var result HealthCheckResult
	for i := 1; i <= attempts; i++ {
		result = performHealthCheck(url)
		result.Attempts = i
		if result.IsHealthy || i == attempts {
			break
		}
		time.Sleep(healthcheckBackoff)
	}
	return result
}

func outputResult(w io.Writer, result HealthCheckResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text", "":
		state := "unhealthy"
		if result.IsHealthy {
			state = "ok"
		}
		fmt.Fprintf(w, "%s: %s (%dms, %d attempt(s))\n", result.URL, state, result.LatencyMs, result.Attempts)
		if result.Status != "" {
			fmt.Fprintf(w, "  status: %s\n", result.Status)
		}
		for name, check := range result.Checks {
			fmt.Fprintf(w, "  %s: %s", name, check.Status)
			if check.Message != "" {
				fmt.Fprintf(w, " (%s)", check.Message)
			}
			fmt.Fprintln(w)
		}
		if result.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", result.Error)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}
}
