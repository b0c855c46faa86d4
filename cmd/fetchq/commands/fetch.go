package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/solvik/fetchq/api"
	"github.com/solvik/fetchq/config"
	"github.com/solvik/fetchq/jobs"
	"github.com/solvik/fetchq/logger"
	"github.com/solvik/fetchq/output"
	"github.com/solvik/fetchq/ratelimit"
)

// FetchCmd runs one upstream request through the full pipeline
var FetchCmd = &cobra.Command{
	Use:   "fetch <path>",
	Short: "Fetch an upstream endpoint through the rate-limited client",
	Long: `Fetch one upstream API endpoint through the rate-limited, retrying
client and route the result: small responses print inline, large ones
go to a background job whose output lands in a result file.

Examples:
  fetchq fetch /quote --param symbol=AAPL
  fetchq fetch /stock/candle --param symbol=AAPL --param resolution=D --estimate 200000
  fetchq fetch /news --param category=general --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawParams, _ := cmd.Flags().GetStringArray("param")
		estimate, _ := cmd.Flags().GetInt("estimate")
		wait, _ := cmd.Flags().GetBool("wait")

		params := url.Values{}
		for _, p := range rawParams {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("invalid --param %q, expected key=value", p)
			}
			params.Add(k, v)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		store, err := jobs.NewStore(cfg.Jobs.Dir, logger.Named("store"))
		if err != nil {
			return err
		}
		runner := jobs.NewRunner(store, cfg.Jobs.MaxConcurrent, cfg.Jobs.JobTimeout(), logger.Named("runner"))
		defer runner.Shutdown(true)
		svc := jobs.NewService(store, runner)

		limiter := ratelimit.NewLimiter(cfg.API.RateLimitRPM, cfg.API.RateWindow())
		client := api.NewClient(cfg.API, limiter, logger.Named("api"))

		writer, err := output.NewWriter(cfg.Output.Dir)
		if err != nil {
			return err
		}
		router := output.NewRouter(writer, svc, cfg.Output.InlineTokenLimit, logger.Named("router"))

		path := args[0]
		op := strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")

		res, err := router.Route(cmd.Context(), output.RouteRequest{
			Op:              op,
			Metadata:        map[string]string{"path": path, "params": params.Encode()},
			EstimatedTokens: estimate,
			Producer: func(ctx context.Context) (json.RawMessage, error) {
				return client.Get(ctx, path, params)
			},
		})
		if err != nil {
			return err
		}

		if !res.Async() {
			fmt.Println(string(res.Inline))
			return nil
		}

		fmt.Printf("Routed to background job %s\n", res.JobID)
		if !wait {
			fmt.Printf("Check progress with: fetchq jobs show %s\n", res.JobID)
			return nil
		}

		waitCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Jobs.JobTimeout()+10*time.Second)
		defer cancel()
		if err := svc.WaitForJob(waitCtx, res.JobID); err != nil {
			return err
		}

		job, err := svc.GetJob(res.JobID)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s %s\n", job.ID, job.Status)
		if job.ResultRef != "" {
			fmt.Printf("Result: %s\n", job.ResultRef)
		}
		if job.Error != "" {
			fmt.Printf("Error: %s\n", job.Error)
		}
		return nil
	},
}

func init() {
	FetchCmd.Flags().StringArray("param", nil, "Query parameter as key=value (repeatable)")
	FetchCmd.Flags().Int("estimate", 0, "Estimated response size in tokens (0 = unknown, routes async)")
	FetchCmd.Flags().Bool("wait", false, "Block until a background job finishes")
}
