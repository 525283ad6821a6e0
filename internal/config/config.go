package config

import (
	"deadkm-service/internal/domain"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: invalid duration %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid integer %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("config: invalid number %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

type Config struct {
	Port string

	// osrm or haversine.
	GeoProvider       string
	OSRMURL           string
	OSRMRequestsPerS  float64
	GeoTimeout        time.Duration
	HaversineSpeedKmh float64

	OptimizeTimeout time.Duration
	MatrixWorkers   int

	// sqlite, postgres or none.
	CacheDriver string
	DBPath      string
	DatabaseURL string

	// Empty means the in-process progress store.
	RedisURL           string
	ProgressRetention  time.Duration
	ProgressStaleAfter time.Duration
	ProgressAckGrace   time.Duration

	Constraints domain.Constraints
}

// Load reads the service configuration from the environment. Call
// godotenv.Load first to pick up a .env file.
func Load() (Config, error) {
	cfg := Config{
		Port:               Get("PORT", "8080"),
		GeoProvider:        strings.ToLower(Get("GEO_PROVIDER", "osrm")),
		OSRMURL:            Get("OSRM_URL", "http://router.project-osrm.org"),
		OSRMRequestsPerS:   getFloat("OSRM_RPS", 10),
		GeoTimeout:         getDuration("GEO_TIMEOUT", 30*time.Second),
		HaversineSpeedKmh:  getFloat("HAVERSINE_SPEED_KMH", 30),
		OptimizeTimeout:    getDuration("OPTIMIZE_TIMEOUT", 10*time.Minute),
		MatrixWorkers:      getInt("MATRIX_WORKERS", 8),
		CacheDriver:        strings.ToLower(Get("CACHE_DRIVER", "sqlite")),
		DBPath:             Get("DB_PATH", "data/cache.db"),
		DatabaseURL:        Get("DATABASE_URL", ""),
		RedisURL:           Get("REDIS_URL", ""),
		ProgressRetention:  getDuration("PROGRESS_RETENTION", 30*time.Minute),
		ProgressStaleAfter: getDuration("PROGRESS_STALE_AFTER", 15*time.Minute),
		ProgressAckGrace:   getDuration("PROGRESS_ACK_GRACE", time.Minute),
		Constraints:        domain.DefaultConstraints(),
	}

	switch cfg.GeoProvider {
	case "osrm", "haversine":
	default:
		return Config{}, fmt.Errorf("config: unknown GEO_PROVIDER %q", cfg.GeoProvider)
	}

	switch cfg.CacheDriver {
	case "sqlite", "none":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("config: DATABASE_URL is required for CACHE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown CACHE_DRIVER %q", cfg.CacheDriver)
	}

	if path := Get("CONSTRAINTS_FILE", ""); path != "" {
		c, err := LoadConstraints(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Constraints = c
	}

	return cfg, nil
}

type constraintsFile struct {
	AllowInterInstitute *bool               `yaml:"allow_inter_institute"`
	AllowUnassigned     *bool               `yaml:"allow_unassigned"`
	EnforceOnOriginal   *bool               `yaml:"enforce_on_original"`
	MinExperience       map[string]float64  `yaml:"min_experience"`
	Depots              map[string][]string `yaml:"depots"`
}

// LoadConstraints reads a YAML constraints file. Keys left out keep their
// default values.
func LoadConstraints(path string) (domain.Constraints, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Constraints{}, fmt.Errorf("config: read constraints %q: %w", path, err)
	}
	return ParseConstraints(b)
}

func ParseConstraints(b []byte) (domain.Constraints, error) {
	var f constraintsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return domain.Constraints{}, fmt.Errorf("config: parse constraints: %w", err)
	}

	c := domain.DefaultConstraints()
	if f.AllowInterInstitute != nil {
		c.AllowInterInstitute = *f.AllowInterInstitute
	}
	if f.AllowUnassigned != nil {
		c.AllowUnassigned = *f.AllowUnassigned
	}
	if f.EnforceOnOriginal != nil {
		c.EnforceOnOriginal = *f.EnforceOnOriginal
	}
	if f.MinExperience != nil {
		for cat, years := range f.MinExperience {
			if years < 0 {
				return domain.Constraints{}, fmt.Errorf("config: min_experience %q must be >= 0", cat)
			}
		}
		c.MinExperience = f.MinExperience
	}
	if f.Depots != nil {
		c.Depots = f.Depots
	}
	return c, nil
}
