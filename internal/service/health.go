package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"integritas-mcp/internal/util"
	"integritas-mcp/internal/version"
)

const probeTimeout = 5 * time.Second

// HealthReport describes upstream readiness.
type HealthReport struct {
	Status            string `json:"status"`
	Server            string `json:"server"`
	Version           string `json:"version"`
	TimeUTC           string `json:"time_utc"`
	UpstreamReachable bool   `json:"upstream_reachable"`
	UpstreamStatus    *int   `json:"upstream_status,omitempty"`
	UpstreamLatencyMS int64  `json:"upstream_latency_ms"`
	Summary           string `json:"summary"`
}

// OK reports whether the upstream is fully ready.
func (h HealthReport) OK() bool { return h.Status == "ok" }

// Ready probes the configured upstream health URL.
func (s *Service) Ready(ctx context.Context, requestID, apiKey string) HealthReport {
	report := HealthReport{
		Status:            "ok",
		Server:            version.ServerName,
		Version:           s.versionString(),
		TimeUTC:           util.UTCISO(time.Now()),
		UpstreamReachable: true,
		Summary:           "Ready",
	}
	if s.healthURL == "" {
		report.Status = "down"
		report.UpstreamReachable = false
		report.Summary = "Upstream health URL not configured"
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	start := time.Now()
	resp, err := s.up.Probe(ctx, s.healthURL, s.up.Headers(requestID, apiKey))
	report.UpstreamLatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		report.Status = "down"
		report.UpstreamReachable = false
		report.Summary = "Upstream error: " + err.Error()
		return report
	}
	code := resp.Status
	report.UpstreamStatus = &code
	if code >= 300 {
		report.Status = "degraded"
		report.Summary = fmt.Sprintf("Upstream returned %d", code)
	}
	return report
}

// SelfHealth is a liveness report that needs no network.
type SelfHealth struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
	PID     int    `json:"pid"`
	UptimeS int64  `json:"uptime_s"`
	Version string `json:"version,omitempty"`
}

// SelfHealth reports process liveness.
func (s *Service) SelfHealth() SelfHealth {
	return SelfHealth{
		Status:  "ok",
		Summary: "MCP server is alive",
		PID:     os.Getpid(),
		UptimeS: int64(time.Since(s.started).Seconds()),
		Version: s.versionString(),
	}
}

func (s *Service) versionString() string {
	if s.version != "" {
		return s.version
	}
	return version.Version
}
