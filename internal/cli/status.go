package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/harun/radbridge/internal/config"
	"github.com/harun/radbridge/pkg/gateway"
	"github.com/spf13/cobra"
)

const statusTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show radbridge status",
	Long:  `Show whether radbridge is running and, if the gateway answers, the state of its agent session.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// gatewayStatus is the gateway.status result
type gatewayStatus struct {
	Initialized  bool   `json:"initialized"`
	PendingTools int    `json:"pendingTools"`
	Clients      int    `json:"clients"`
	AgentURL     string `json:"agentUrl"`
	Agent        string `json:"agent"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	pidFile := pidFilePath(cfg.DataDir)
	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	status, err := queryGatewayStatus(ctx, http.DefaultClient, gatewayURL(cfg.Gateway), cfg.Gateway.SharedSecret)
	if err != nil {
		fmt.Fprintf(out, "Gateway: unreachable (%v)\n", err)
		return nil
	}
	printGatewayStatus(out, cfg.Gateway.Addr(), status)
	return nil
}

func printGatewayStatus(out io.Writer, addr string, status *gatewayStatus) {
	fmt.Fprintf(out, "Gateway: %s\n", addr)
	fmt.Fprintf(out, "Clients: %d\n", status.Clients)
	if !status.Initialized {
		fmt.Fprintln(out, "Agent: not initialized")
		return
	}
	fmt.Fprintf(out, "Agent: %s (%s)\n", status.Agent, status.AgentURL)
	fmt.Fprintf(out, "Pending tool calls: %d\n", status.PendingTools)
}

// gatewayURL returns the /rpc endpoint, dialing loopback when the gateway
// listens on every interface
func gatewayURL(gw config.GatewayConfig) string {
	host := gw.Host
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(gw.Port)) + "/rpc"
}

func queryGatewayStatus(ctx context.Context, client *http.Client, url, secret string) (*gatewayStatus, error) {
	body, err := json.Marshal(gateway.RPCRequest{
		ID:      "status",
		Method:  gateway.MethodGatewayStatus,
		JSONRPC: "2.0",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(gateway.SecretHeader, secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var rpcResp struct {
		Result *gatewayStatus    `json:"result"`
		Error  *gateway.RPCError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if rpcResp.Result == nil {
		return nil, fmt.Errorf("empty status response")
	}
	return rpcResp.Result, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
