package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ArowuTest/lottery-odds/internal/simulation"
)

var Cfg *AppConfig

// AppConfig holds all environment variables.
type AppConfig struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBName      string
	DBPassword  string
	DBSSLMode   string
	JWTSecret   string
	JWTTTL      time.Duration
	FrontendURL string

	// Bootstrap account created at server start when missing.
	AdminUsername string
	AdminPassword string

	// Simulation defaults shared by the CLI and the API.
	EntrantsFile  string
	Iterations    int
	MainSpots     int
	WaitlistSpots int
	Workers       int

	RunCacheSize int64
}

// Load reads environment variables (and .env if present)
func Load() *AppConfig {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	Cfg = &AppConfig{
		Port:          v.GetString("PORT"),
		DBHost:        v.GetString("DB_HOST"),
		DBPort:        v.GetString("DB_PORT"),
		DBUser:        v.GetString("DB_USER"),
		DBName:        v.GetString("DB_NAME"),
		DBPassword:    v.GetString("DB_PASSWORD"),
		DBSSLMode:     v.GetString("DB_SSLMODE"),
		JWTSecret:     v.GetString("JWT_SECRET_KEY"),
		JWTTTL:        v.GetDuration("JWT_TTL"),
		FrontendURL:   v.GetString("FRONTEND_URL"),
		AdminUsername: v.GetString("ADMIN_USERNAME"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		EntrantsFile:  v.GetString("ENTRANTS_FILE"),
		Iterations:    v.GetInt("SIM_ITERATIONS"),
		MainSpots:     v.GetInt("SIM_MAIN_SPOTS"),
		WaitlistSpots: v.GetInt("SIM_WAITLIST_SPOTS"),
		Workers:       v.GetInt("SIM_WORKERS"),
		RunCacheSize:  v.GetInt64("RUN_CACHE_SIZE"),
	}
	return Cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_TTL", 24*time.Hour)
	v.SetDefault("FRONTEND_URL", "*")
	v.SetDefault("ENTRANTS_FILE", "entrants.csv")
	v.SetDefault("SIM_ITERATIONS", simulation.DefaultIterations)
	v.SetDefault("SIM_MAIN_SPOTS", simulation.DefaultMainSpots)
	v.SetDefault("SIM_WAITLIST_SPOTS", simulation.DefaultWaitlistSpots)
	v.SetDefault("SIM_WORKERS", 0)
	v.SetDefault("RUN_CACHE_SIZE", 256)
}

// SimulationDefaults returns the configured parameters with no seed.
func (c *AppConfig) SimulationDefaults() simulation.Params {
	return simulation.Params{
		Iterations:    c.Iterations,
		MainSpots:     c.MainSpots,
		WaitlistSpots: c.WaitlistSpots,
		Workers:       c.Workers,
	}
}

// DatabaseEnabled reports whether runs should be archived in PostgreSQL.
// Without DB_HOST the server keeps runs in memory.
func (c *AppConfig) DatabaseEnabled() bool {
	return c.DBHost != ""
}

// DSN is the postgres connection string.
func (c *AppConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// InitDB opens the postgres connection with a SQL logger on stdout.
func InitDB(c *AppConfig) (*gorm.DB, error) {
	return OpenDB(c.DSN())
}

// OpenDB opens a postgres connection for dsn.
func OpenDB(dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

// CORSMiddleware allows the configured frontend origin(s). FRONTEND_URL is a
// comma separated list; "*" allows any origin.
func CORSMiddleware(frontendURL string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Accept", "Cache-Control", "X-Requested-With"},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}
	for _, o := range strings.Split(frontendURL, ",") {
		o = strings.TrimSpace(o)
		switch {
		case o == "*":
			cfg.AllowAllOrigins = true
		case o != "":
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowOrigins = nil
	}
	return cors.New(cfg)
}
