package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName         string
		Env             string // DEV (local; default), TEST, QA, PROD
		Build           string
		Debug           bool
		TestMode        bool
		WorkDir         string
		SecretKey       string
		RollbarToken    string
		SendgridAPIKey  string
		FromEmail       mail.Address
		ContactInbox    mail.Address
		FrontendBaseURL string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Media    MediaConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		AllowOrigins              []string
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		URL string // empty: in-process token denylist
	}

	MediaConfig struct {
		Backend        string // local | s3
		Dir            string
		BaseURL        string
		S3Bucket       string
		S3Region       string
		S3Endpoint     string // MinIO and other S3 compatible stores
		S3UsePathStyle bool
		S3AccessKey    string
		S3SecretKey    string
		MaxUploadBytes int64
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewConfig loads the configuration of the current ENV from defaults, the optional
// config/.env.<env> file and the environment (prefixed with the ENV name).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)

	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		WorkDir:         workDir,
		SecretKey:       v.GetString("secretKey"),
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridAPIKey:  v.GetString("sendgridApiKey"),
		FromEmail:       mail.Address{Name: v.GetString("appName"), Address: v.GetString("fromEmail")},
		ContactInbox:    mail.Address{Name: v.GetString("appName"), Address: v.GetString("contactInbox")},
		FrontendBaseURL: v.GetString("frontendBaseUrl"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			AllowOrigins:              v.GetStringSlice("server.allowOrigins"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTls"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Media: MediaConfig{
			Backend:        v.GetString("media.backend"),
			Dir:            v.GetString("media.dir"),
			BaseURL:        v.GetString("media.baseUrl"),
			S3Bucket:       v.GetString("media.s3Bucket"),
			S3Region:       v.GetString("media.s3Region"),
			S3Endpoint:     v.GetString("media.s3Endpoint"),
			S3UsePathStyle: v.GetBool("media.s3UsePathStyle"),
			S3AccessKey:    v.GetString("media.s3AccessKey"),
			S3SecretKey:    v.GetString("media.s3SecretKey"),
			MaxUploadBytes: v.GetInt64("media.maxUploadBytes"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "Sekolah")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "k8w!x2)r-p0zb$3m=ua&4nqe9(t#y6v^d1c%h7fs_j5lgo")
	v.SetDefault("fromEmail", "noreply@localhost")
	v.SetDefault("contactInbox", "info@localhost")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.allowOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sekolah")
	v.SetDefault("database.user", "sekolah")
	v.SetDefault("database.password", "sekolah")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTls", env == "DEV" || env == "TEST")

	v.SetDefault("redis.url", "")

	v.SetDefault("media.backend", "local")
	v.SetDefault("media.dir", "uploads")
	v.SetDefault("media.baseUrl", "/uploads")
	v.SetDefault("media.s3Bucket", "")
	v.SetDefault("media.s3Region", "ap-southeast-1")
	v.SetDefault("media.s3Endpoint", "")
	v.SetDefault("media.s3UsePathStyle", false)
	v.SetDefault("media.s3AccessKey", "")
	v.SetDefault("media.s3SecretKey", "")
	v.SetDefault("media.maxUploadBytes", int64(5<<20))
}
