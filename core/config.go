package core

import (
	"encoding/json"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	MiB = 1 << 20

	UploadBackendLocal = "local"
	UploadBackendGCS   = "gcs"
	UploadBackendS3    = "s3"
)

type (
	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		Build            string
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		WorkDir          string
		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		Documents DocumentsConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
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

	DocumentsConfig struct {
		ResubmitPolicy string
		UploadBackend  string

		// local backend
		LocalDir     string
		LocalBaseURL string

		// cloud backends
		GCSBucket string
		S3Bucket  string
		S3Region  string
		S3Prefix  string

		Profiles map[string]UploadProfileConfig
		Slots    []SlotConfig
	}

	UploadProfileConfig struct {
		Types   []string `json:"types" mapstructure:"types"`
		MaxSize int64    `json:"maxSize" mapstructure:"maxSize"`
	}

	SlotConfig struct {
		ID          string `json:"id" mapstructure:"id"`
		Name        string `json:"name" mapstructure:"name"`
		Description string `json:"description" mapstructure:"description"`
		Required    bool   `json:"required" mapstructure:"required"`
		Profile     string `json:"profile" mapstructure:"profile"`
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the app configuration from the environment.
// Env vars are prefixed with the upper-cased ENV value, eg. `DEV_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	profiles, slots, err := documentSettings(v)
	if err != nil {
		log.Fatalf("config.documents: %v", err)
	}

	conf := &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		WorkDir:          workDir,
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
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
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Documents: DocumentsConfig{
			ResubmitPolicy: v.GetString("documents.resubmitPolicy"),
			UploadBackend:  v.GetString("documents.uploadBackend"),
			LocalDir:       v.GetString("documents.localDir"),
			LocalBaseURL:   v.GetString("documents.localBaseURL"),
			GCSBucket:      v.GetString("documents.gcsBucket"),
			S3Bucket:       v.GetString("documents.s3Bucket"),
			S3Region:       v.GetString("documents.s3Region"),
			S3Prefix:       v.GetString("documents.s3Prefix"),
			Profiles:       profiles,
			Slots:          slots,
		},
	}
	if conf.TestMode {
		conf.Debug = true
	}

	// shortcuts overriding the general profile, eg. `PROD_DOCUMENTS_GENERALMAXSIZE=20971520`
	if general, ok := conf.Documents.Profiles["general"]; ok {
		if size := v.GetInt64("documents.generalMaxSize"); size > 0 {
			general.MaxSize = size
		}
		if types := v.GetStringSlice("documents.generalTypes"); len(types) > 0 {
			general.Types = types
		}
		conf.Documents.Profiles["general"] = general
	}
	return conf
}

// documentSettings reads the upload profiles and slots, falling back to the defaults.
func documentSettings(v *viper.Viper) (map[string]UploadProfileConfig, []SlotConfig, error) {
	profiles, slots := defaultProfiles(), defaultSlots()
	if v.IsSet("documents.profiles") {
		profiles = nil
		if err := unmarshalKey(v, "documents.profiles", &profiles); err != nil {
			return nil, nil, errors.Wrap(err, "decoding profiles")
		}
	}
	if v.IsSet("documents.slots") {
		slots = nil
		if err := unmarshalKey(v, "documents.slots", &slots); err != nil {
			return nil, nil, errors.Wrap(err, "decoding slots")
		}
	}
	return profiles, slots, nil
}

// unmarshalKey decodes the structured setting key. Env vars carry it as JSON,
// eg. `PROD_DOCUMENTS_SLOTS='[{"id": "transcript", "name": "Transcript", "profile": "general"}]'`.
func unmarshalKey(v *viper.Viper, key string, out interface{}) error {
	if raw, ok := v.Get(key).(string); ok {
		return json.Unmarshal([]byte(raw), out)
	}
	return v.UnmarshalKey(key, out)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Masomo")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("documents.resubmitPolicy", "clear-file")
	v.SetDefault("documents.uploadBackend", UploadBackendLocal)
	v.SetDefault("documents.localDir", filepath.Join(os.TempDir(), "masomo-documents"))
	v.SetDefault("documents.localBaseURL", "http://localhost:8000/files")
	v.SetDefault("documents.gcsBucket", "")
	v.SetDefault("documents.s3Bucket", "")
	v.SetDefault("documents.s3Region", "us-east-1")
	v.SetDefault("documents.s3Prefix", "documents/")
	v.SetDefault("documents.generalMaxSize", int64(0))
	v.SetDefault("documents.generalTypes", []string{})
}

// defaultProfiles are the two upload profiles the app uses:
// general documents and the narrower letter upload flow.
func defaultProfiles() map[string]UploadProfileConfig {
	return map[string]UploadProfileConfig{
		"general": {Types: []string{"pdf", "jpeg", "jpg", "png"}, MaxSize: 10 * MiB},
		"letter":  {Types: []string{"pdf", "txt"}, MaxSize: 4 * MiB},
	}
}

func defaultSlots() []SlotConfig {
	return []SlotConfig{
		{ID: "transcript", Name: "Transcript", Description: "Latest official school transcript", Required: true, Profile: "general"},
		{ID: "birth-certificate", Name: "Birth Certificate", Description: "Copy of the birth certificate", Required: true, Profile: "general"},
		{ID: "id-photo", Name: "ID Photo", Description: "Recent passport-size photo", Required: false, Profile: "general"},
		{ID: "recommendation-letter", Name: "Recommendation Letter", Description: "Letter from a previous teacher", Required: false, Profile: "letter"},
	}
}
