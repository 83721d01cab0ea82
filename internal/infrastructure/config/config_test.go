package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the tests touch. Viper treats empty
// variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RENTALS_APP_NAME", "RENTALS_APP_ENV", "RENTALS_APP_PORT",
		"RENTALS_DATABASE_HOST", "RENTALS_DATABASE_PORT", "RENTALS_DATABASE_PASSWORD",
		"RENTALS_DATABASE_SSLMODE", "RENTALS_DATABASE_MAX_OPEN_CONNS", "RENTALS_DATABASE_MAX_IDLE_CONNS",
		"RENTALS_JWT_SECRET", "RENTALS_BILLING_OVERPAYMENT_POLICY", "RENTALS_BILLING_CONFLICT_RETRIES",
		"RENTALS_SCHEDULER_CHARGE_DAY_OF_MONTH", "RENTALS_GATEWAY_PROVIDER",
		"RENTALS_GATEWAY_RAZORPAY_KEY_ID", "RENTALS_GATEWAY_RAZORPAY_SECRET",
		"RENTALS_STORAGE_ENABLED", "RENTALS_STORAGE_BUCKET",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "rentals-billing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "rentals", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "allow", cfg.Billing.OverpaymentPolicy)
		assert.Equal(t, 3, cfg.Billing.ConflictRetries)
		assert.Equal(t, 10, cfg.Billing.OutstandingLimit)
		assert.Equal(t, "USD", cfg.Billing.Currency)
		assert.Equal(t, 25, cfg.Scheduler.ChargeDayOfMonth)
		assert.Equal(t, "ledger", cfg.Gateway.Provider)
		assert.Equal(t, 24*time.Hour, cfg.Gateway.IdempotencyTTL)
		assert.Equal(t, "rentals-billing", cfg.Telemetry.ServiceName)
	})

	t.Run("loads values from environment variables with RENTALS prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_APP_PORT", "9000")
		t.Setenv("RENTALS_DATABASE_HOST", "db.internal")
		t.Setenv("RENTALS_DATABASE_PORT", "5433")
		t.Setenv("RENTALS_BILLING_OVERPAYMENT_POLICY", "reject")
		t.Setenv("RENTALS_BILLING_CONFLICT_RETRIES", "5")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "reject", cfg.Billing.OverpaymentPolicy)
		assert.Equal(t, 5, cfg.Billing.ConflictRetries)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("RENTALS_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown overpayment policy", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_BILLING_OVERPAYMENT_POLICY", "refund")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overpayment_policy")
	})

	t.Run("rejects charge day beyond 28", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_SCHEDULER_CHARGE_DAY_OF_MONTH", "31")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "charge_day_of_month")
	})

	t.Run("razorpay requires credentials", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_GATEWAY_PROVIDER", "razorpay")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "razorpay_key_id")

		t.Setenv("RENTALS_GATEWAY_RAZORPAY_KEY_ID", "rzp_test_key")
		t.Setenv("RENTALS_GATEWAY_RAZORPAY_SECRET", "secret")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "razorpay", cfg.Gateway.Provider)
	})

	t.Run("storage requires bucket when enabled", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTALS_APP_ENV", "production")
		t.Setenv("RENTALS_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("RENTALS_DATABASE_PASSWORD", "secure-password")
		t.Setenv("RENTALS_DATABASE_SSLMODE", "require")
		t.Setenv("RENTALS_GATEWAY_PROVIDER", "razorpay")
		t.Setenv("RENTALS_GATEWAY_RAZORPAY_KEY_ID", "rzp_live_key")
		t.Setenv("RENTALS_GATEWAY_RAZORPAY_SECRET", "secret")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("RENTALS_JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("RENTALS_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("refuses the ledger-only gateway in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("RENTALS_GATEWAY_PROVIDER", "ledger")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed in production")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}
