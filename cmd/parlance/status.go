// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// statusTimeout bounds each probe request.
const statusTimeout = 2 * time.Second

// ServiceStatus holds what the health probes reported.
type ServiceStatus struct {
	Endpoint string `json:"endpoint"`
	Live     bool   `json:"live"`
	Ready    bool   `json:"ready"`
	Error    string `json:"error,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running Parlance server",
		Long: `Query the liveness and readiness probes of a running server on its
observability address. Readiness includes a database ping.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	conf, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if conf.Metrics.Addr == "" {
		return oops.Code("STATUS_UNAVAILABLE").Errorf("the observability server is disabled (metrics.addr is empty)")
	}

	client := &http.Client{Timeout: statusTimeout}
	status := queryStatus(cmd.Context(), client, probeBase(conf.Metrics.Addr))

	if cfg.jsonOutput {
		out, err := formatStatusJSON(status)
		if err != nil {
			return err
		}
		cmd.Println(out)
	} else {
		cmd.Print(formatStatusTable(status))
	}

	if !status.Ready {
		return oops.Code("SERVICE_NOT_READY").With("endpoint", status.Endpoint).Errorf("service is not ready")
	}
	return nil
}

// probeBase turns a listen address into a URL a local client can dial.
func probeBase(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func queryStatus(ctx context.Context, client *http.Client, base string) ServiceStatus {
	status := ServiceStatus{Endpoint: base}

	live, err := probe(ctx, client, base+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Live = live

	ready, err := probe(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = ready
	if !ready {
		status.Error = "not ready"
	}
	return status
}

func probe(ctx context.Context, client *http.Client, url string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	//nolint:errcheck // drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

func formatStatusTable(status ServiceStatus) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ENDPOINT\tLIVE\tREADY\tDETAIL")
	detail := status.Error
	if detail == "" {
		detail = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		strings.TrimPrefix(status.Endpoint, "http://"), yesNo(status.Live), yesNo(status.Ready), detail)

	_ = w.Flush()
	return buf.String()
}

func formatStatusJSON(status ServiceStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.With("operation", "marshal status").Wrap(err)
	}
	return string(data), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
