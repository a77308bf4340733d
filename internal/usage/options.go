package usage

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	triflestats "github.com/trifle-io/trifle_stats_go"
)

// Options selects and configures the storage driver for the usage ledger.
type Options struct {
	Driver          string
	DBPath          string
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	Table           string
	Collection      string
	Prefix          string
	Joined          string
	Separator       string
	TimeZone        string
	BeginningOfWeek string
	Granularities   string
	BufferMode      string
	BufferDuration  time.Duration
	BufferSize      int
}

const (
	DefaultTable    = "nbp_usage"
	DefaultDatabase = "nbp_usage"
)

// Enabled reports whether name selects a ledger driver. An empty or "none"
// driver disables usage recording.
func Enabled(name string) bool {
	switch NormalizeDriver(name) {
	case "sqlite", "postgres", "mysql", "redis", "mongo":
		return true
	default:
		return false
	}
}

func NormalizeDriver(name string) string {
	value := strings.ToLower(strings.TrimSpace(name))
	if value == "mongodb" {
		return "mongo"
	}
	return value
}

func (o Options) config(driverName string) (*triflestats.Config, triflestats.JoinedIdentifier, error) {
	joined, err := ParseJoinedIdentifier(o.Joined)
	if err != nil {
		return nil, joined, err
	}
	weekStart, err := ParseWeekday(o.BeginningOfWeek)
	if err != nil {
		return nil, joined, err
	}

	cfg := triflestats.DefaultConfig()
	cfg.TimeZone = firstNonEmpty(o.TimeZone, "UTC")
	cfg.Separator = firstNonEmpty(o.Separator, "::")
	cfg.JoinedIdentifier = joined
	cfg.BeginningOfWeek = weekStart
	if granularities := ParseGranularities(o.Granularities); len(granularities) > 0 {
		cfg.Granularities = granularities
	}
	applyBufferOptions(cfg, o, driverName)

	return cfg, joined, nil
}

// applyBufferOptions leaves buffering off unless BufferMode asks for it.
func applyBufferOptions(cfg *triflestats.Config, o Options, driverName string) {
	if o.BufferDuration > 0 {
		cfg.BufferDuration = o.BufferDuration
	}
	if o.BufferSize > 0 {
		cfg.BufferSize = o.BufferSize
	}

	switch strings.ToLower(strings.TrimSpace(o.BufferMode)) {
	case "always", "on", "enabled", "true", "yes":
		cfg.BufferEnabled = true
	case "auto":
		cfg.BufferEnabled = driverName == "sqlite" || driverName == "postgres" || driverName == "mysql"
	default:
		cfg.BufferEnabled = false
	}
}

func ParseGranularities(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func ParseWeekday(input string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "monday", "mon", "":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return time.Monday, fmt.Errorf("invalid week start: %s", input)
	}
}

func ParseJoinedIdentifier(input string) (triflestats.JoinedIdentifier, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "full", "":
		return triflestats.JoinedFull, nil
	case "partial":
		return triflestats.JoinedPartial, nil
	case "separated", "none", "null":
		return triflestats.JoinedSeparated, nil
	default:
		return triflestats.JoinedFull, fmt.Errorf("invalid joined mode: %s", input)
	}
}

func buildPostgresDSN(o Options) string {
	if strings.TrimSpace(o.DSN) != "" {
		return strings.TrimSpace(o.DSN)
	}

	host := firstNonEmpty(o.Host, "127.0.0.1")
	port := firstNonEmpty(o.Port, "5432")
	user := firstNonEmpty(o.User, "postgres")
	password := firstNonEmpty(o.Password, "password")
	database := resolveDatabaseName(o)

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(user),
		url.QueryEscape(password),
		net.JoinHostPort(host, port),
		url.PathEscape(database),
	)
}

func buildMySQLDSN(o Options) string {
	if strings.TrimSpace(o.DSN) != "" {
		return strings.TrimSpace(o.DSN)
	}

	host := firstNonEmpty(o.Host, "127.0.0.1")
	port := firstNonEmpty(o.Port, "3306")
	user := firstNonEmpty(o.User, "root")
	password := firstNonEmpty(o.Password, "password")

	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC",
		user,
		password,
		net.JoinHostPort(host, port),
		resolveDatabaseName(o),
	)
}

func resolveDatabaseName(o Options) string {
	if strings.TrimSpace(o.Database) != "" {
		return strings.TrimSpace(o.Database)
	}
	if strings.TrimSpace(o.DBPath) != "" && NormalizeDriver(o.Driver) != "sqlite" {
		return strings.TrimSpace(o.DBPath)
	}
	return DefaultDatabase
}

func parseIntOrDefault(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
