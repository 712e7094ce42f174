package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewQueryCmd builds the `profilestore query` command: calls the
// backend's Query RPC (spec §6) and writes the resulting gzip-compressed
// pprof document to stdout or --out.
func NewQueryCmd() *cobra.Command {
	var (
		server      string
		queryString string
		timestampMs int64
		out         string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a select_single query against a profilestore-server and save the resulting pprof document",
		Long: `Query retrieves one aggregated profile snapshot for the given selector
and timestamp (spec §4.12/§4.14), writing the reconstructed
gzip-compressed pprof bytes to --out (or stdout).

Example:
  profilestore query --server http://localhost:7070 \
    --query 'arch=aarch64|parca_agent_cpu:samples:count:cpu:nanoseconds' \
    --timestamp 1700000000000 --out profile.pb.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if queryString == "" {
				return fmt.Errorf("--query is required")
			}

			u, err := url.Parse(server + "/v1/query")
			if err != nil {
				return fmt.Errorf("invalid --server: %w", err)
			}
			q := u.Query()
			q.Set("query_string", queryString)
			q.Set("timestamp_ms", strconv.FormatInt(timestampMs, 10))
			u.RawQuery = q.Encode()

			httpClient := &http.Client{Timeout: 30 * time.Second}
			resp, err := httpClient.Get(u.String())
			if err != nil {
				return fmt.Errorf("query request: %w", err)
			}
			defer resp.Body.Close() // nolint:errcheck

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("query failed: status %d: %s", resp.StatusCode, string(body))
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out) // #nosec G304 - operator supplied path
				if err != nil {
					return fmt.Errorf("create --out file: %w", err)
				}
				defer f.Close() // nolint:errcheck
				w = f
			}

			_, err = io.Copy(w, resp.Body)
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:7070", "profilestore-server base URL")
	cmd.Flags().StringVar(&queryString, "query", "", "select_single query string (label filters '|' meta)")
	cmd.Flags().Int64Var(&timestampMs, "timestamp", 0, "unix millisecond timestamp to select")
	cmd.Flags().StringVar(&out, "out", "", "output file path (defaults to stdout)")

	return cmd
}
