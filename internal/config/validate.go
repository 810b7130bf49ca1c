package config

import (
	"fmt"
	"net/url"
	"strings"

	"meshjoin/internal/meshjoin"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning flags a setting that runs but is probably not intended.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is the dotted config key (e.g. "runtime.segment_size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// knownKinds are the storage backends shipped in storage/all.
var knownKinds = map[string]bool{"mysql": true, "postgres": true, "sqlite": true, "mssql": true}

// Validate performs static checks over cfg. It does not mutate cfg or touch
// the network; callers decide whether warnings are fatal.
func Validate(cfg Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(cfg.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateEndpoint("source", cfg.Source.Endpoint)...)
	issues = append(issues, validateEndpoint("warehouse", cfg.Warehouse.Endpoint)...)
	issues = append(issues, validateRuntime(cfg.Runtime)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)

	if cfg.Source.Kind == cfg.Warehouse.Kind && cfg.Source.DSN != "" && cfg.Source.DSN == cfg.Warehouse.DSN {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.dsn",
			Message:  "source and warehouse point at the same database; table names must not collide",
		})
	}
	return issues
}

func validateEndpoint(path string, e Endpoint) []Issue {
	var issues []Issue

	kind := strings.TrimSpace(e.Kind)
	switch {
	case kind == "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  "kind is required (mysql, postgres, sqlite, mssql)",
		})
		return issues
	case !knownKinds[kind]:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unsupported kind %q (want mysql, postgres, sqlite or mssql)", kind),
		})
		return issues
	}

	if e.DSN == "" && e.Name == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".dsn",
			Message:  "either dsn or name must be set",
		})
	}
	if e.DSN != "" && (e.Name != "" || e.User != "") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".dsn",
			Message:  "dsn is set; name/user/password are ignored",
		})
	}
	if e.Port < 0 || e.Port > 65535 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".port",
			Message:  fmt.Sprintf("port %d is out of range", e.Port),
		})
	}
	if e.DSN == "" && e.Name != "" {
		if _, err := BuildDSN(e); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  err.Error(),
			})
		}
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.SegmentSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.segment_size",
			Message:  "segment_size must be > 0",
		})
	}
	if r.PartitionSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.partition_size",
			Message:  "partition_size must be > 0",
		})
	}

	policy, err := meshjoin.ParseRefreshPolicy(r.RefreshPolicy)
	if err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.refresh_policy",
			Message:  err.Error(),
		})
	}
	if policy == meshjoin.RefreshPerSegment && r.SegmentSize > 0 && r.PartitionSize > 0 && r.PartitionSize < r.SegmentSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.partition_size",
			Message:  "per-segment refresh with partitions smaller than a segment drops most transactions",
		})
	}

	dedup, err := meshjoin.ParseFactDedup(r.FactDedup)
	if err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.fact_dedup",
			Message:  err.Error(),
		})
	}
	if dedup == meshjoin.DedupTimeID {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.fact_dedup",
			Message:  "time_id is shared by every order of a day; all but the first fact per time_id are dropped",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
	case "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway_url is required for the prometheus backend",
			})
		} else if u, err := url.Parse(m.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  fmt.Sprintf("pushgateway_url %q is not an absolute URL", m.PushgatewayURL),
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog_addr is required for the datadog backend",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unsupported metrics backend %q (want none, prometheus or datadog)", m.Backend),
		})
	}
	return issues
}
