package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/iamconsole/backend-go/internal/models"
)

// Supported JDBC dialects
const (
	DialectMySQL      = "mysql"
	DialectMariaDB    = "mariadb"
	DialectPostgreSQL = "postgresql"
	DialectSQLServer  = "sqlserver"
)

// Default ports per dialect
var defaultPorts = map[string]int{
	DialectMySQL:      3306,
	DialectMariaDB:    3306,
	DialectPostgreSQL: 5432,
	DialectSQLServer:  1433,
}

var (
	// ErrInvalidJDBCURL is returned for URLs that are not jdbc:<dialect>://...
	ErrInvalidJDBCURL = errors.New("invalid JDBC URL")
	// ErrUnsupportedDialect is returned for JDBC dialects without a Go driver
	ErrUnsupportedDialect = errors.New("unsupported JDBC dialect")
)

// JDBCURL is the parsed form of a JDBC connection URL
type JDBCURL struct {
	Dialect  string
	Host     string
	// Port is zero for a SQL Server named instance without an explicit port;
	// the driver then resolves it through the SQL Browser service
	Port     int
	Instance string
	Database string
	Params   map[string]string
}

// Address returns host:port, or host\instance[:port] for named instances
func (u *JDBCURL) Address() string {
	host := u.Host
	if u.Instance != "" {
		host += `\` + u.Instance
	}
	if u.Port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(u.Port))
}

// ParseJDBCURL parses jdbc:mysql, jdbc:mariadb, jdbc:postgresql and
// jdbc:sqlserver URLs. Only the first host of a multi-host URL is used.
func ParseJDBCURL(raw string) (*JDBCURL, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "jdbc:")
	if !ok {
		return nil, fmt.Errorf("%w: missing jdbc: prefix", ErrInvalidJDBCURL)
	}

	dialect, rest, ok := strings.Cut(rest, "://")
	if !ok || dialect == "" {
		return nil, fmt.Errorf("%w: missing dialect", ErrInvalidJDBCURL)
	}
	dialect = strings.ToLower(dialect)
	port, supported := defaultPorts[dialect]
	if !supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, dialect)
	}

	parsed := &JDBCURL{Dialect: dialect, Port: port, Params: map[string]string{}}

	var hostPart string
	if dialect == DialectSQLServer {
		// jdbc:sqlserver://host[\instance][:port][;key=value]*
		segments := strings.Split(rest, ";")
		hostPart = segments[0]
		for _, segment := range segments[1:] {
			key, value, found := strings.Cut(segment, "=")
			if !found || key == "" {
				continue
			}
			parsed.Params[strings.ToLower(key)] = value
		}
		parsed.Database = parsed.Params["databasename"]
		if parsed.Database == "" {
			parsed.Database = parsed.Params["database"]
		}
	} else {
		// jdbc:<dialect>://host[:port][,host2...]/database[?key=value&...]
		var path, query string
		hostPart, path, _ = strings.Cut(rest, "/")
		path, query, _ = strings.Cut(path, "?")
		parsed.Database = path
		if query != "" {
			values, err := url.ParseQuery(query)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidJDBCURL, err)
			}
			for key := range values {
				parsed.Params[key] = values.Get(key)
			}
		}
	}

	hostPart, _, _ = strings.Cut(hostPart, ",")
	host, portText := hostPart, ""
	if i := strings.LastIndex(hostPart, ":"); i >= 0 && !strings.HasSuffix(hostPart, "]") {
		host, portText = hostPart[:i], hostPart[i+1:]
	}
	host = strings.Trim(host, "[]")
	if portText != "" {
		p, err := strconv.Atoi(portText)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidJDBCURL, portText)
		}
		parsed.Port = p
	}
	if dialect == DialectSQLServer {
		host, parsed.Instance, _ = strings.Cut(host, `\`)
		if parsed.Instance == "" {
			parsed.Instance = parsed.Params["instancename"]
		}
		if parsed.Instance != "" && portText == "" {
			parsed.Port = 0
		}
	}
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidJDBCURL)
	}
	parsed.Host = host

	return parsed, nil
}

// ProbeError is a failed connection attempt with a user facing message
type ProbeError struct {
	Message string
	Err     error
}

// Error implements error
func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the driver error
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ErrorMessage returns the user facing message
func (e *ProbeError) ErrorMessage() string {
	return e.Message
}

// ErrorDescription is empty so callers use their own description
func (e *ProbeError) ErrorDescription() string {
	return ""
}

// ProbeResult describes a successful connection attempt
type ProbeResult struct {
	Dialect       string        `json:"dialect"`
	Address       string        `json:"address"`
	Database      string        `json:"database"`
	ServerVersion string        `json:"server_version,omitempty"`
	ResponseTime  time.Duration `json:"response_time"`
}

// OpenFunc opens a database handle
type OpenFunc func(driverName, dataSourceName string) (*sql.DB, error)

// DatabaseService tests JDBC user store datasources directly through Go
// database drivers
type DatabaseService struct {
	timeout time.Duration
	open    OpenFunc
	logger  *slog.Logger
}

// NewDatabaseService creates a new database service instance
func NewDatabaseService(timeout time.Duration, logger *slog.Logger) *DatabaseService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseService{
		timeout: timeout,
		open:    sql.Open,
		logger:  logger,
	}
}

// WithOpener replaces the function used to open database handles
func (ds *DatabaseService) WithOpener(open OpenFunc) *DatabaseService {
	ds.open = open
	return ds
}

// TestConnection checks that the datastore described by req is reachable
func (ds *DatabaseService) TestConnection(ctx context.Context, req models.TestConnectionRequest) error {
	_, err := ds.Probe(ctx, req)
	return err
}

// Probe connects to the datastore described by req and reports its version
func (ds *DatabaseService) Probe(ctx context.Context, req models.TestConnectionRequest) (*ProbeResult, error) {
	startTime := time.Now()

	jdbc, err := ParseJDBCURL(req.ConnectionURL)
	if err != nil {
		return nil, &ProbeError{Message: "Connection configuration error", Err: err}
	}

	driverName, dsn := ds.dataSource(jdbc, req.Username, req.ConnectionPassword)

	testCtx, cancel := context.WithTimeout(ctx, ds.timeout)
	defer cancel()

	db, err := ds.open(driverName, dsn)
	if err != nil {
		return nil, &ProbeError{Message: "Connection configuration error", Err: err}
	}
	defer db.Close()

	// Set connection limits
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(ds.timeout)

	// Ping and version query share one physical connection
	conn, err := db.Conn(testCtx)
	if err == nil {
		defer conn.Close()
		err = conn.PingContext(testCtx)
	}
	if err != nil {
		ds.logger.InfoContext(ctx, "direct connection test failed",
			"dialect", jdbc.Dialect,
			"address", jdbc.Address(),
			"error", err,
		)
		return nil, &ProbeError{Message: classifyPingError(err), Err: err}
	}

	result := &ProbeResult{
		Dialect:  jdbc.Dialect,
		Address:  jdbc.Address(),
		Database: jdbc.Database,
	}

	// Connection works even when the version cannot be read
	if version, err := ds.serverVersion(testCtx, conn, jdbc.Dialect); err == nil {
		result.ServerVersion = version
	}

	result.ResponseTime = time.Since(startTime)
	return result, nil
}

// dataSource returns the Go driver name and DSN for a parsed JDBC URL
func (ds *DatabaseService) dataSource(jdbc *JDBCURL, username, password string) (string, string) {
	switch jdbc.Dialect {
	case DialectPostgreSQL:
		return "postgres", ds.buildPostgreSQLConnectionString(jdbc, username, password)
	case DialectSQLServer:
		return "sqlserver", ds.buildSQLServerConnectionString(jdbc, username, password)
	default:
		return "mysql", ds.buildMySQLConnectionString(jdbc, username, password)
	}
}

// buildPostgreSQLConnectionString builds a PostgreSQL connection string
func (ds *DatabaseService) buildPostgreSQLConnectionString(jdbc *JDBCURL, username, password string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("host=%s", pqQuote(jdbc.Host)))
	parts = append(parts, fmt.Sprintf("port=%d", jdbc.Port))
	if username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", pqQuote(username)))
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", pqQuote(password)))
	}
	if jdbc.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", pqQuote(jdbc.Database)))
	}

	// SSL configuration
	switch {
	case jdbc.Params["sslmode"] != "":
		parts = append(parts, fmt.Sprintf("sslmode=%s", pqQuote(jdbc.Params["sslmode"])))
	case strings.EqualFold(jdbc.Params["ssl"], "true"):
		parts = append(parts, "sslmode=require")
	default:
		parts = append(parts, "sslmode=disable")
	}

	timeoutSeconds := int(ds.timeout.Seconds())
	if timeoutSeconds > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", timeoutSeconds))
	}

	return strings.Join(parts, " ")
}

// buildMySQLConnectionString builds a MySQL/MariaDB DSN
func (ds *DatabaseService) buildMySQLConnectionString(jdbc *JDBCURL, username, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = jdbc.Address()
	cfg.DBName = jdbc.Database
	cfg.Timeout = ds.timeout
	cfg.ParseTime = true

	if strings.EqualFold(jdbc.Params["useSSL"], "true") || strings.EqualFold(jdbc.Params["sslMode"], "REQUIRED") {
		cfg.TLSConfig = "true"
	}

	return cfg.FormatDSN()
}

// buildSQLServerConnectionString builds a SQL Server URL DSN
func (ds *DatabaseService) buildSQLServerConnectionString(jdbc *JDBCURL, username, password string) string {
	query := url.Values{}
	if jdbc.Database != "" {
		query.Set("database", jdbc.Database)
	}
	if encrypt := jdbc.Params["encrypt"]; encrypt != "" {
		query.Set("encrypt", encrypt)
	}
	if trust := jdbc.Params["trustservercertificate"]; trust != "" {
		query.Set("TrustServerCertificate", trust)
	}
	timeoutSeconds := int(ds.timeout.Seconds())
	if timeoutSeconds > 0 {
		query.Set("dial timeout", strconv.Itoa(timeoutSeconds))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     jdbc.Host,
		RawQuery: query.Encode(),
	}
	if jdbc.Port != 0 {
		u.Host = net.JoinHostPort(jdbc.Host, strconv.Itoa(jdbc.Port))
	}
	if jdbc.Instance != "" {
		u.Path = "/" + jdbc.Instance
	}
	if username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}

// serverVersion reads the server version string
func (ds *DatabaseService) serverVersion(ctx context.Context, db *sql.Conn, dialect string) (string, error) {
	query := "SELECT VERSION()"
	switch dialect {
	case DialectPostgreSQL:
		query = "SELECT version()"
	case DialectSQLServer:
		query = "SELECT @@VERSION"
	}

	var version string
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return extractVersion(dialect, version), nil
}

// extractVersion pulls the version number out of a full version banner
func extractVersion(dialect, version string) string {
	switch dialect {
	case DialectPostgreSQL:
		if strings.Contains(version, "PostgreSQL") {
			if parts := strings.Fields(version); len(parts) >= 2 {
				return parts[1]
			}
		}
	case DialectSQLServer:
		if line, _, _ := strings.Cut(version, "\n"); line != "" {
			return strings.TrimSpace(line)
		}
	default:
		if before, _, found := strings.Cut(version, "-"); found {
			return before
		}
	}
	return version
}

// classifyPingError maps a driver error to a user facing message
func classifyPingError(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout"):
		return "Connection timeout - check network connectivity"
	case strings.Contains(lower, "authentication") || strings.Contains(msg, "Access denied") || strings.Contains(lower, "login failed"):
		return "Authentication failed - check username and password"
	case strings.Contains(lower, "does not exist") || strings.Contains(msg, "Unknown database") || strings.Contains(lower, "cannot open database"):
		return "Database does not exist"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return "Database server is unreachable"
	default:
		return "Connection failed"
	}
}

// pqQuote quotes a value for a lib/pq key=value connection string
func pqQuote(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}
