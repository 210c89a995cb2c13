package serverconfig

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

type ConfigStore struct {
	FlagRunAddr   string
	FlagDatabase  string
	FlagUploadDir string
	FlagBaseURL   string

	Env      string
	LogLevel string

	JWTSecret         string
	JWTTTL            time.Duration
	AdminEmail        string
	AdminPasswordHash string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	PartnershipEmail string

	AllowedOrigins []string
	TrustedHosts   []string

	MaxFileSize       int64
	MaxImagePixels    int64
	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicURL       string

	PaymentGateway  string
	StripeSecretKey string
	PaymentDelay    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	OTPSendLimit  int
	OTPSendWindow time.Duration

	MinReferrals   int
	CreationPolicy lifecycle.CreationPolicy
	StartPolicy    lifecycle.StartPolicy
	SweepInterval  time.Duration
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		FlagRunAddr:    ":8080",
		FlagUploadDir:  "uploads",
		FlagBaseURL:    "http://localhost:8080",
		Env:            "development",
		LogLevel:       "info",
		JWTTTL:         30 * time.Minute,
		SMTPPort:       587,
		MaxFileSize:    5 << 20,
		MaxImagePixels: 40_000_000,
		PaymentGateway: "simulated",
		PaymentDelay:   2 * time.Second,
		OTPSendLimit:   5,
		OTPSendWindow:  time.Hour,
		MinReferrals:   lifecycle.DefaultMinReferrals,
		CreationPolicy: lifecycle.CreateOpen,
		StartPolicy:    lifecycle.StartReferralGated,
		SweepInterval:  time.Minute,
	}
}

// LoadDotEnv reads an optional .env file. Variables already set in the
// environment win.
func LoadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not read .env file")
	}
}

// ParseFlags reads command line arguments, then lets environment variables
// override them, and validates the result.
func (configStore *ConfigStore) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("studfund", flag.ContinueOnError)
	fs.StringVar(&configStore.FlagRunAddr, "a", configStore.FlagRunAddr, "address and port to run server")
	fs.StringVar(&configStore.FlagDatabase, "d", configStore.FlagDatabase, "data for connecting to db")
	fs.StringVar(&configStore.FlagUploadDir, "u", configStore.FlagUploadDir, "directory for uploaded images")
	fs.StringVar(&configStore.FlagBaseURL, "b", configStore.FlagBaseURL, "public base url of the api")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := configStore.applyEnv(os.LookupEnv); err != nil {
		return err
	}
	return configStore.Validate()
}

type lookupFunc func(key string) (string, bool)

type envReader struct {
	lookup lookupFunc
	err    error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = errors.Wrapf(err, "%s must be an integer", key)
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, unit time.Duration, dst *time.Duration) {
	n := int(*dst / unit)
	r.integer(key, &n)
	*dst = time.Duration(n) * unit
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (configStore *ConfigStore) applyEnv(lookup lookupFunc) error {
	r := &envReader{lookup: lookup}

	r.str("RUN_ADDRESS", &configStore.FlagRunAddr)
	r.str("DATABASE_URI", &configStore.FlagDatabase)
	r.str("UPLOAD_DIR", &configStore.FlagUploadDir)
	r.str("BASE_URL", &configStore.FlagBaseURL)
	r.str("ENV", &configStore.Env)
	r.str("LOG_LEVEL", &configStore.LogLevel)

	r.str("JWT_SECRET", &configStore.JWTSecret)
	r.duration("JWT_TTL_MINUTES", time.Minute, &configStore.JWTTTL)
	r.str("ADMIN_EMAIL", &configStore.AdminEmail)
	r.str("ADMIN_PASSWORD_HASH", &configStore.AdminPasswordHash)

	r.str("SMTP_HOST", &configStore.SMTPHost)
	r.integer("SMTP_PORT", &configStore.SMTPPort)
	r.str("SMTP_USERNAME", &configStore.SMTPUsername)
	r.str("SMTP_PASSWORD", &configStore.SMTPPassword)
	r.str("SMTP_FROM", &configStore.SMTPFrom)
	r.str("PARTNERSHIP_EMAIL", &configStore.PartnershipEmail)

	r.list("ALLOWED_ORIGINS", &configStore.AllowedOrigins)
	r.list("TRUSTED_HOSTS", &configStore.TrustedHosts)

	maxFile := int(configStore.MaxFileSize)
	r.integer("MAX_FILE_SIZE", &maxFile)
	configStore.MaxFileSize = int64(maxFile)
	maxPixels := int(configStore.MaxImagePixels)
	r.integer("MAX_IMAGE_PIXELS", &maxPixels)
	configStore.MaxImagePixels = int64(maxPixels)
	r.str("S3_BUCKET", &configStore.S3Bucket)
	r.str("S3_ENDPOINT", &configStore.S3Endpoint)
	r.str("S3_REGION", &configStore.S3Region)
	r.str("S3_ACCESS_KEY_ID", &configStore.S3AccessKeyID)
	r.str("S3_SECRET_ACCESS_KEY", &configStore.S3SecretAccessKey)
	r.str("S3_PUBLIC_URL", &configStore.S3PublicURL)

	r.str("PAYMENT_GATEWAY", &configStore.PaymentGateway)
	r.str("STRIPE_SECRET_KEY", &configStore.StripeSecretKey)
	r.duration("PAYMENT_DELAY_MS", time.Millisecond, &configStore.PaymentDelay)

	r.str("REDIS_ADDR", &configStore.RedisAddr)
	r.str("REDIS_PASSWORD", &configStore.RedisPassword)
	r.integer("REDIS_DB", &configStore.RedisDB)
	r.integer("OTP_SEND_LIMIT", &configStore.OTPSendLimit)
	r.duration("OTP_SEND_WINDOW_MINUTES", time.Minute, &configStore.OTPSendWindow)

	r.integer("MIN_REFERRALS_REQUIRED", &configStore.MinReferrals)
	r.duration("SWEEP_INTERVAL_SECONDS", time.Second, &configStore.SweepInterval)
	if r.err != nil {
		return r.err
	}

	if v, ok := lookup("CAMPAIGN_CREATION_POLICY"); ok && v != "" {
		policy, err := lifecycle.ParseCreationPolicy(v)
		if err != nil {
			return err
		}
		configStore.CreationPolicy = policy
	}
	if v, ok := lookup("CAMPAIGN_START_POLICY"); ok && v != "" {
		policy, err := lifecycle.ParseStartPolicy(v)
		if err != nil {
			return err
		}
		configStore.StartPolicy = policy
	}
	return nil
}

func (configStore *ConfigStore) Validate() error {
	if configStore.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if configStore.FlagDatabase == "" {
		return errors.New("database uri is required (-d or DATABASE_URI)")
	}
	if configStore.JWTTTL <= 0 {
		return errors.New("JWT_TTL_MINUTES must be positive")
	}
	if configStore.MinReferrals <= 0 {
		return errors.New("MIN_REFERRALS_REQUIRED must be positive")
	}
	if configStore.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL_SECONDS must be positive")
	}
	switch configStore.PaymentGateway {
	case "simulated":
	case "stripe":
		if configStore.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required for the stripe gateway")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_GATEWAY %q", configStore.PaymentGateway)
	}
	return nil
}

// IsProduction reports whether ENV names a production deployment.
func (configStore *ConfigStore) IsProduction() bool {
	return strings.EqualFold(configStore.Env, "production")
}
