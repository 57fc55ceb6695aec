package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check sandwich engine status",
	Long: `Check a running engine's health by scraping its metrics endpoint.
Reports opportunity, execution and drop counters per chain.`,
	RunE: runStatus,
}

var (
	jsonOutput    bool
	watchMode     bool
	watchInterval time.Duration
)

type engineStatus struct {
	Status    string    `json:"status"`
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "output in JSON format")
	statusCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "watch mode (continuous updates)")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "watch interval duration")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if watchMode {
		for {
			if err := printStatus(); err != nil {
				return err
			}
			time.Sleep(watchInterval)
		}
	}
	return printStatus()
}

func printStatus() error {
	endpoint := fmt.Sprintf("http://localhost:%d/metrics", viper.GetInt("metrics.port"))

	status := engineStatus{
		Status:    "running",
		Endpoint:  endpoint,
		Timestamp: time.Now(),
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(endpoint)
	if err != nil {
		status.Status = "unreachable"
	} else {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			status.Status = fmt.Sprintf("unhealthy (%d)", resp.StatusCode)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Endpoint:  %s\n", status.Endpoint)
	fmt.Printf("Timestamp: %s\n", status.Timestamp.Format(time.RFC3339))

	if resp != nil && status.Status == "running" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err == nil {
			fmt.Println("\nMetrics:")
			printCounters(body)
		}
	}
	return nil
}

// printCounters echoes the engine's own counter lines from the prometheus
// exposition, skipping go runtime noise
func printCounters(body []byte) {
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "sandwich_") {
			fmt.Printf("  %s\n", line)
		}
	}
}
