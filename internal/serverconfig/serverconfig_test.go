package serverconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

func mapLookup(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := NewConfigStore()
	require.NoError(t, c.applyEnv(mapLookup(nil)))

	assert.Equal(t, ":8080", c.FlagRunAddr)
	assert.Equal(t, "uploads", c.FlagUploadDir)
	assert.Equal(t, 30*time.Minute, c.JWTTTL)
	assert.Equal(t, 587, c.SMTPPort)
	assert.Equal(t, int64(5<<20), c.MaxFileSize)
	assert.Equal(t, int64(40_000_000), c.MaxImagePixels)
	assert.Equal(t, 2*time.Second, c.PaymentDelay)
	assert.Equal(t, 5, c.MinReferrals)
	assert.Equal(t, lifecycle.CreateOpen, c.CreationPolicy)
	assert.Equal(t, lifecycle.StartReferralGated, c.StartPolicy)
	assert.Equal(t, time.Minute, c.SweepInterval)
}

func TestApplyEnv(t *testing.T) {
	c := NewConfigStore()
	err := c.applyEnv(mapLookup(map[string]string{
		"RUN_ADDRESS":              ":9090",
		"JWT_TTL_MINUTES":          "60",
		"ALLOWED_ORIGINS":          "https://a.test, https://b.test,,",
		"PAYMENT_DELAY_MS":         "0",
		"OTP_SEND_WINDOW_MINUTES":  "15",
		"MIN_REFERRALS_REQUIRED":   "3",
		"CAMPAIGN_CREATION_POLICY": "referral_gated",
		"CAMPAIGN_START_POLICY":    "unchecked",
		"SWEEP_INTERVAL_SECONDS":   "5",
		"MAX_FILE_SIZE":            "1024",
		"MAX_IMAGE_PIXELS":         "1000000",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.FlagRunAddr)
	assert.Equal(t, time.Hour, c.JWTTTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, c.AllowedOrigins)
	assert.Zero(t, c.PaymentDelay)
	assert.Equal(t, 15*time.Minute, c.OTPSendWindow)
	assert.Equal(t, 3, c.MinReferrals)
	assert.Equal(t, lifecycle.CreateReferralGated, c.CreationPolicy)
	assert.Equal(t, lifecycle.StartUnchecked, c.StartPolicy)
	assert.Equal(t, 5*time.Second, c.SweepInterval)
	assert.Equal(t, int64(1024), c.MaxFileSize)
	assert.Equal(t, int64(1000000), c.MaxImagePixels)
}

func TestApplyEnvRejects(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"bad integer", map[string]string{"SMTP_PORT": "smtp"}},
		{"bad duration", map[string]string{"JWT_TTL_MINUTES": "half an hour"}},
		{"unknown creation policy", map[string]string{"CAMPAIGN_CREATION_POLICY": "invite_only"}},
		{"unknown start policy", map[string]string{"CAMPAIGN_START_POLICY": "whenever"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, NewConfigStore().applyEnv(mapLookup(tc.env)))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *ConfigStore {
		c := NewConfigStore()
		c.JWTSecret = "secret"
		c.FlagDatabase = "postgres://localhost/studfund"
		return c
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		modify func(c *ConfigStore)
	}{
		{"missing secret", func(c *ConfigStore) { c.JWTSecret = "" }},
		{"missing database", func(c *ConfigStore) { c.FlagDatabase = "" }},
		{"stripe without key", func(c *ConfigStore) { c.PaymentGateway = "stripe" }},
		{"unknown gateway", func(c *ConfigStore) { c.PaymentGateway = "paypal" }},
		{"zero referrals", func(c *ConfigStore) { c.MinReferrals = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseFlagsEnvWins(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("RUN_ADDRESS", ":7070")
	t.Setenv("DATABASE_URI", "")

	c := NewConfigStore()
	err := c.ParseFlags([]string{"-a", ":6060", "-d", "postgres://flag/db", "-u", "/tmp/img"})
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.FlagRunAddr)
	assert.Equal(t, "postgres://flag/db", c.FlagDatabase)
	assert.Equal(t, "/tmp/img", c.FlagUploadDir)
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STUDFUND_TEST_A=from-file\nSTUDFUND_TEST_B=from-file\n"), 0o600))
	t.Setenv("STUDFUND_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("STUDFUND_TEST_B") })

	LoadDotEnv(path)
	assert.Equal(t, "from-env", os.Getenv("STUDFUND_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("STUDFUND_TEST_B"))

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
