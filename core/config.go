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
		Debug    bool
		TestMode bool
		Env      string
		Build    string
		AppName  string

		SecretKey        []byte
		DefaultFromEmail mail.Address
		SupportEmail     mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server    ServerConfig
		ClaimSync ClaimSyncConfig
		Database  DatabaseConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	// ClaimSyncConfig controls the admin claim propagation protocol.
	ClaimSyncConfig struct {
		MaxAttempts int
		BaseDelay   time.Duration
		BackendURL  string
		CallTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		Host          string
		Port          string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
)

func (c ServerConfig) Address() string   { return c.Host + ":" + c.Port }
func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and environment variables (prefixed with the env name).
func NewConfig(build string) *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Campus")
	conf.SetDefault("secretKey", "w#94=d1x&u(h2ojc5mh^$+g7er)enb$e!57=dz&m0y4hgq2e")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("supportEmail", "support@localhost")
	conf.SetDefault("serverHost", "")
	conf.SetDefault("serverPort", "8000")
	conf.SetDefault("serverDebugHost", "localhost:4000")
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("claimSyncMaxAttempts", 5)
	conf.SetDefault("claimSyncBaseDelay", time.Second)
	conf.SetDefault("claimSyncBackendURL", "http://localhost:8000/v1")
	conf.SetDefault("claimSyncCallTimeout", 10*time.Second)
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbName", "campus")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbDisableTLS", true)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	case "QA", "PROD":
		conf.SetDefault("debug", false)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            build,
		AppName:          conf.GetString("appName"),
		SecretKey:        []byte(conf.GetString("secretKey")),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		SupportEmail:     mail.Address{Name: conf.GetString("appName") + " Support", Address: conf.GetString("supportEmail")},
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Port:                      conf.GetString("serverPort"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
		},
		ClaimSync: ClaimSyncConfig{
			MaxAttempts: conf.GetInt("claimSyncMaxAttempts"),
			BaseDelay:   conf.GetDuration("claimSyncBaseDelay"),
			BackendURL:  conf.GetString("claimSyncBackendURL"),
			CallTimeout: conf.GetDuration("claimSyncCallTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
	}
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run;
// configs must still resolve relative to the project root.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s)", c.AppName, c.Env)
}
