package config // package config loads application configuration from environment variables

import (
    "errors"
    "fmt"
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings"
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/cinema-seat-sync/internal/database"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    JWTSecret string // secret used to verify bearer tokens

    LeaseTTL      time.Duration // hold lifetime
    SweepInterval time.Duration // backstop expiry sweep period
    LockStripes   int           // per-seat lock stripes

    RegistryBackend string // memory | redis
    RegistryPrefix  string // Redis key prefix of the seat registry

    BroadcastRelay   string // none | redis | nats
    RelayChannel     string // Redis channel / NATS subject for the relay
    NATSURL          string
    SubscriberBuffer int // per-subscriber event buffer

    CatalogSource string  // static | mysql
    StaticShows   []int64 // shows served by the static catalog
    StaticRows    int
    StaticCols    int

    DB database.Params // MySQL, required when the catalog or booking store uses it

    BookingStore    bool   // write bookings to MySQL
    RabbitMQURL     string // empty disables booking.confirmed publishing
    BookingConsumer bool   // run the booking.confirmed log consumer in-process
    BookingLogPath  string

    WSReadLimit   int64   // max inbound websocket frame size
    WSFrameRate   float64 // inbound frames per second per connection
    ShutdownGrace time.Duration
}

// LoadDotEnv reads .env style files into the environment without
// overriding variables that are already set.  Missing files are ignored.
func LoadDotEnv(files ...string) {
    if len(files) == 0 {
        files = []string{".env"}
    }
    for _, f := range files {
        if _, err := os.Stat(f); err != nil {
            continue
        }
        if err := godotenv.Load(f); err != nil {
            log.Printf("config: could not load %s: %v", f, err)
        }
    }
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and invalid values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:       envStr("APP_ENV", "dev"),
        Port:      envStr("APP_PORT", "8080"),
        JWTSecret: must("JWT_SECRET"),

        LeaseTTL:      envDur("LEASE_TTL", 300*time.Second),
        SweepInterval: envDur("SWEEP_INTERVAL", 5*time.Second),
        LockStripes:   envInt("LOCK_STRIPES", 256),

        RegistryBackend: strings.ToLower(envStr("REGISTRY_BACKEND", "memory")),
        RegistryPrefix:  envStr("REGISTRY_PREFIX", "seats"),

        BroadcastRelay:   strings.ToLower(envStr("BROADCAST_RELAY", "none")),
        RelayChannel:     envStr("RELAY_CHANNEL", "seats.events"),
        NATSURL:          envStr("NATS_URL", "nats://localhost:4222"),
        SubscriberBuffer: envInt("SUBSCRIBER_BUFFER", 64),

        CatalogSource: strings.ToLower(envStr("CATALOG_SOURCE", "static")),
        StaticRows:    envInt("STATIC_ROWS", 10),
        StaticCols:    envInt("STATIC_COLS", 12),

        BookingStore:    envBool("BOOKING_STORE", false),
        RabbitMQURL:     firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
        BookingConsumer: envBool("BOOKING_CONSUMER", false),
        BookingLogPath:  envStr("BOOKING_LOG_PATH", "logs/booking.log"),

        WSReadLimit:   int64(envInt("WS_READ_LIMIT", 4096)),
        WSFrameRate:   envFloat("WS_FRAME_RATE", 5),
        ShutdownGrace: envDur("SHUTDOWN_GRACE", 10*time.Second),
    }

    shows, err := parseShows(envStr("STATIC_SHOWS", "1,2,3,42"))
    if err != nil {
        log.Fatalf("invalid STATIC_SHOWS: %v", err)
    }
    cfg.StaticShows = shows

    if cfg.CatalogSource == "mysql" || cfg.BookingStore {
        cfg.DB = database.Params{
            User: must("DB_USER"),      // database user
            Pass: os.Getenv("DB_PASS"), // database password (empty allowed)
            Host: must("DB_HOST"),      // database host
            Port: envStr("DB_PORT", "3306"),
            Name: must("DB_NAME"), // database name
        }
    }
    if err := cfg.Validate(); err != nil {
        log.Fatalf("invalid configuration: %v", err)
    }
    return cfg
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
    var errs []error
    switch c.RegistryBackend {
    case "memory", "redis":
    default:
        errs = append(errs, fmt.Errorf("REGISTRY_BACKEND must be memory or redis, got %q", c.RegistryBackend))
    }
    switch c.BroadcastRelay {
    case "none", "redis", "nats":
    default:
        errs = append(errs, fmt.Errorf("BROADCAST_RELAY must be none, redis or nats, got %q", c.BroadcastRelay))
    }
    switch c.CatalogSource {
    case "static", "mysql":
    default:
        errs = append(errs, fmt.Errorf("CATALOG_SOURCE must be static or mysql, got %q", c.CatalogSource))
    }
    // Relayed nodes must share one registry: separate registries would each
    // grant the same seat and number their commits independently.
    if c.BroadcastRelay != "none" && c.RegistryBackend != "redis" {
        errs = append(errs, fmt.Errorf("BROADCAST_RELAY=%s requires REGISTRY_BACKEND=redis", c.BroadcastRelay))
    }
    if c.LeaseTTL < time.Second {
        errs = append(errs, errors.New("LEASE_TTL must be at least 1s"))
    }
    if c.CatalogSource == "static" && (c.StaticRows < 1 || c.StaticCols < 1 || len(c.StaticShows) == 0) {
        errs = append(errs, errors.New("static catalog needs STATIC_SHOWS, STATIC_ROWS and STATIC_COLS"))
    }
    if c.BookingConsumer && c.RabbitMQURL == "" {
        errs = append(errs, errors.New("BOOKING_CONSUMER requires RABBITMQ_URL"))
    }
    return errors.Join(errs...)
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

func parseShows(s string) ([]int64, error) {
    var out []int64
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(p)
        if p == "" {
            continue
        }
        id, err := strconv.ParseInt(p, 10, 64)
        if err != nil {
            return nil, fmt.Errorf("show id %q: %w", p, err)
        }
        out = append(out, id)
    }
    return out, nil
}

func firstNonEmpty(vals ...string) string {
    for _, v := range vals {
        if v != "" {
            return v
        }
    }
    return ""
}
