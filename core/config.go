package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
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
		Addr     string
		Password string
		DB       int
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		DefaultFromEmail mail.Address
		FrontendBaseURL  string
		WorkDir          string
		MediaDir         string
		RollbarToken     string
		SendgridApiKey   string
		SettingsBackend  string // postgres | redis

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig loads the configuration of the current environment.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
// Variables are read with the environment as prefix, e.g. DEV_DATABASE_NAME.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:         v.GetString("app.name"),
		Env:             env,
		Build:           v.GetString("app.build"),
		Debug:           v.GetBool("app.debug"),
		TestMode:        env == "TEST",
		SecretKey:       v.GetString("app.secret_key"),
		FrontendBaseURL: v.GetString("app.frontend_url"),
		WorkDir:         wd,
		MediaDir:        v.GetString("app.media_dir"),
		RollbarToken:    v.GetString("rollbar.token"),
		SendgridApiKey:  v.GetString("sendgrid.key"),
		SettingsBackend: v.GetString("settings.backend"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debug_host"),
			ReadTimeout:               v.GetDuration("server.read_timeout"),
			WriteTimeout:              v.GetDuration("server.write_timeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwt_expiration"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwt_refresh_expiration"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin_user"),
			AdminPassword: v.GetString("database.admin_password"),
			DisableTLS:    v.GetBool("database.disable_tls"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	from, err := mail.ParseAddress(v.GetString("app.default_from_email"))
	if err != nil {
		log.Fatalf("config.mail.ParseAddress: %v", err)
	}
	if from.Name == "" {
		from.Name = conf.AppName
	}
	conf.DefaultFromEmail = *from

	if conf.MediaDir == "" {
		conf.MediaDir = filepath.Join(wd, "media")
	}
	if !conf.Debug && conf.SecretKey == defaultSecretKey {
		log.Fatal("config: the default secret key cannot be used outside of debug mode")
	}
	return conf
}

const defaultSecretKey = "k3-9dp!x$uy2@c7j(n0&w5ml+h8r^qz=t4)e#vb1g6sf*oa"

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("app.name", "Shule")
	v.SetDefault("app.build", "develop")
	v.SetDefault("app.debug", env == "DEV" || env == "TEST")
	v.SetDefault("app.secret_key", defaultSecretKey)
	v.SetDefault("app.default_from_email", "noreply@localhost")
	v.SetDefault("app.frontend_url", "http://localhost:8080")
	v.SetDefault("settings.backend", "postgres")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debug_host", ":4000")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.jwt_expiration", 7*24*time.Hour)
	v.SetDefault("server.jwt_refresh_expiration", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", fmt.Sprintf("shule_%s", strings.ToLower(env)))
	v.SetDefault("database.user", "shule")
	v.SetDefault("database.password", "shule")
	v.SetDefault("database.disable_tls", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}
