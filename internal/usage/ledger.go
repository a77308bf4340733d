// Package usage records per-tool call counts and outcomes in a trifle stats store.
package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	triflestats "github.com/trifle-io/trifle_stats_go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Key is the trifle metric key all tool calls are tracked under.
const Key = "nbp::tool_calls"

var granularityPattern = regexp.MustCompile(`^\d+(s|m|h|d|w|mo|q|y)$`)

type Ledger struct {
	config  *triflestats.Config
	driver  string
	target  string
	setupFn func() error
	closeFn func() error
}

// Open connects the configured driver. It does not create tables; run Setup once first.
func Open(o Options) (*Ledger, error) {
	driverName := NormalizeDriver(o.Driver)
	if !Enabled(driverName) {
		return nil, fmt.Errorf("unsupported usage driver: %s", o.Driver)
	}

	cfg, joined, err := o.config(driverName)
	if err != nil {
		return nil, err
	}

	ledger := &Ledger{
		config: cfg,
		driver: driverName,
		target: firstNonEmpty(o.Table, DefaultTable),
	}
	table := ledger.target

	switch driverName {
	case "sqlite":
		if strings.TrimSpace(o.DBPath) == "" {
			return nil, fmt.Errorf("usage db path is required for sqlite driver")
		}
		db, err := sql.Open("sqlite", o.DBPath)
		if err != nil {
			return nil, err
		}
		driver := triflestats.NewSQLiteDriver(db, table, joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		ledger.setupFn = driver.Setup
		ledger.closeFn = db.Close
		ledger.target = driver.TableName

	case "postgres":
		db, err := sql.Open("pgx", buildPostgresDSN(o))
		if err != nil {
			return nil, err
		}
		driver := triflestats.NewPostgresDriver(db, table, joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		ledger.setupFn = driver.Setup
		ledger.closeFn = db.Close
		ledger.target = driver.TableName

	case "mysql":
		db, err := sql.Open("mysql", buildMySQLDSN(o))
		if err != nil {
			return nil, err
		}
		driver := triflestats.NewMySQLDriver(db, table, joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		ledger.setupFn = driver.Setup
		ledger.closeFn = db.Close
		ledger.target = driver.TableName

	case "redis":
		client, err := buildRedisClient(o)
		if err != nil {
			return nil, err
		}
		prefix := firstNonEmpty(o.Prefix, "nbp_usage")
		driver := triflestats.NewRedisDriver(client, prefix)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		ledger.closeFn = client.Close
		ledger.target = prefix

	case "mongo":
		client, err := connectMongo(o)
		if err != nil {
			return nil, err
		}
		collectionName := firstNonEmpty(o.Collection, o.Table, DefaultTable)
		collection := client.Database(resolveDatabaseName(o)).Collection(collectionName)
		driver := triflestats.NewMongoDriver(collection, joined)
		driver.Separator = cfg.Separator
		cfg.Driver = driver
		ledger.setupFn = func() error {
			return driver.Setup(context.Background())
		}
		ledger.closeFn = func() error {
			return client.Disconnect(context.Background())
		}
		ledger.target = collectionName
	}

	return ledger, nil
}

func (l *Ledger) Driver() string {
	return l.driver
}

func (l *Ledger) Target() string {
	return l.target
}

// Setup creates the backing table or indexes. Redis needs none.
func (l *Ledger) Setup() error {
	if l == nil || l.setupFn == nil {
		return nil
	}
	return l.setupFn()
}

func (l *Ledger) Close() error {
	if l == nil || l.closeFn == nil {
		return nil
	}
	return l.closeFn()
}

func (l *Ledger) Record(at time.Time, tool, outcome string, elapsed time.Duration) error {
	values := map[string]any{
		"calls":       1,
		"duration_ms": elapsed.Milliseconds(),
		"tools": map[string]any{
			tool: map[string]any{
				"calls": 1,
				outcome: 1,
			},
		},
	}
	if err := triflestats.Track(l.config, Key, at, values); err != nil {
		return l.SuggestSetup(err)
	}
	return nil
}

type Row struct {
	At       time.Time
	Tool     string
	Calls    int64
	Outcomes map[string]int64
}

// Summary reads tracked calls between from and to, bucketed by granularity.
// An empty granularity picks 1h or 1d when configured.
func (l *Ledger) Summary(from, to time.Time, granularity string) ([]Row, error) {
	granularity, err := l.resolveGranularity(granularity)
	if err != nil {
		return nil, err
	}

	result, err := triflestats.Values(l.config, Key, from, to, granularity, true)
	if err != nil {
		return nil, l.SuggestSetup(err)
	}
	series := triflestats.SeriesFromResult(result)

	var rows []Row
	for i, at := range series.At {
		if i >= len(series.Values) {
			break
		}
		rows = append(rows, summarize(at, series.Values[i])...)
	}

	return rows, nil
}

// summarize turns one bucket of tracked values into per-tool rows sorted by tool.
func summarize(at time.Time, values map[string]any) []Row {
	counts := map[string]int64{}
	flatten("", values, counts)

	byTool := map[string]*Row{}
	for path, count := range counts {
		parts := strings.Split(path, ".")
		if len(parts) != 3 || parts[0] != "tools" {
			continue
		}
		row, ok := byTool[parts[1]]
		if !ok {
			row = &Row{At: at, Tool: parts[1], Outcomes: map[string]int64{}}
			byTool[parts[1]] = row
		}
		if parts[2] == "calls" {
			row.Calls = count
		} else {
			row.Outcomes[parts[2]] = count
		}
	}

	rows := make([]Row, 0, len(byTool))
	for _, row := range byTool {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Tool < rows[j].Tool })
	return rows
}

func flatten(prefix string, values map[string]any, out map[string]int64) {
	for key, value := range values {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(path, nested, out)
			continue
		}
		if number, ok := toInt64(value); ok {
			out[path] = number
		}
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
		if parsed, err := v.Float64(); err == nil {
			return int64(parsed), true
		}
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(parsed), true
		}
	}
	return 0, false
}

func (l *Ledger) resolveGranularity(granularity string) (string, error) {
	granularity = strings.ToLower(strings.TrimSpace(granularity))
	if granularity != "" {
		if !granularityPattern.MatchString(granularity) {
			return "", fmt.Errorf("granularity must be <number><unit> using s, m, h, d, w, mo, q, y (e.g. 1h, 1d)")
		}
		return granularity, nil
	}

	available := l.config.EffectiveGranularities()
	for _, candidate := range []string{"1h", "1d"} {
		for _, value := range available {
			if value == candidate {
				return candidate, nil
			}
		}
	}
	if len(available) > 0 {
		return available[0], nil
	}
	return "1h", nil
}

// SuggestSetup appends a setup hint to errors caused by a missing table.
func (l *Ledger) SuggestSetup(err error) error {
	if err == nil {
		return nil
	}
	message := strings.ToLower(err.Error())
	if !strings.Contains(message, "no such table") &&
		!strings.Contains(message, "doesn't exist") &&
		!strings.Contains(message, "does not exist") {
		return err
	}

	switch l.driver {
	case "sqlite", "postgres", "mysql", "mongo":
		return fmt.Errorf("%w (run: nbp-mcp stats setup --usage-driver %s)", err, l.driver)
	}
	return err
}

func buildRedisClient(o Options) (*redis.Client, error) {
	dsn := strings.TrimSpace(o.DSN)
	if dsn != "" {
		if strings.Contains(dsn, "://") {
			parsed, err := redis.ParseURL(dsn)
			if err != nil {
				return nil, err
			}
			return redis.NewClient(parsed), nil
		}
		return redis.NewClient(&redis.Options{Addr: dsn}), nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(firstNonEmpty(o.Host, "127.0.0.1"), firstNonEmpty(o.Port, "6379")),
		Username: strings.TrimSpace(o.User),
		Password: strings.TrimSpace(o.Password),
		DB:       parseIntOrDefault(o.Database, 0),
	}), nil
}

func connectMongo(o Options) (*mongo.Client, error) {
	uri := strings.TrimSpace(o.DSN)
	if uri == "" {
		uri = firstNonEmpty(o.Host, "mongodb://127.0.0.1:27017")
		if !strings.Contains(uri, "://") {
			uri = "mongodb://" + uri
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return client, nil
}
