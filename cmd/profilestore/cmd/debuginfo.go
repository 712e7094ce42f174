package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// NewDebuginfoCmd builds the `profilestore debuginfo` command group, an
// operator-facing way to probe the upload negotiation RPCs of spec §6
// without pushing bytes through the full should/initiate/upload/finish
// lifecycle.
func NewDebuginfoCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "debuginfo",
		Short: "Inspect debug-info upload state on a profilestore-server",
	}
	root.AddCommand(newDebuginfoStatusCmd())
	return root
}

func newDebuginfoStatusCmd() *cobra.Command {
	var (
		server  string
		buildID string
		hash    string
		kind    string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Call should_initiate_upload and print whether an upload is needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if buildID == "" {
				return fmt.Errorf("--build-id is required")
			}

			reqBody, err := json.Marshal(map[string]any{
				"build_id": buildID,
				"hash":     hash,
				"force":    force,
				"kind":     kind,
			})
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}

			httpClient := &http.Client{Timeout: 10 * time.Second}
			resp, err := httpClient.Post(server+"/v1/debuginfo/should_initiate_upload", "application/json", bytes.NewReader(reqBody))
			if err != nil {
				return fmt.Errorf("request: %w", err)
			}
			defer resp.Body.Close() // nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("should_initiate_upload failed: status %d: %s", resp.StatusCode, string(body))
			}

			var out map[string]any
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			cmd.Printf("should_upload=%v reason=%v\n", out["should"], out["reason"])
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:7070", "profilestore-server base URL")
	cmd.Flags().StringVar(&buildID, "build-id", "", "build-id to check (required)")
	cmd.Flags().StringVar(&hash, "hash", "", "content hash, if known")
	cmd.Flags().StringVar(&kind, "kind", "EXECUTABLE", "debug-info kind: EXECUTABLE or SOURCES")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the existing-upload short-circuit")

	return cmd
}
