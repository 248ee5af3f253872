package snowflake

import (
	"testing"

	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

func accountConfig() *config.SourceConfig {
	cfg := config.NewSourceConfig("snowflake")
	cfg.Query = "SELECT * FROM orders;"
	cfg.Database = "SALES"
	cfg.Credentials.Username = "loader"
	cfg.Credentials.Password = "secret"
	cfg.Options["account"] = "acme"
	cfg.Options["warehouse"] = "WH"
	cfg.Options["role"] = "READER"
	return cfg
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(accountConfig())
	require.NoError(t, err)

	parsed, err := gosnowflake.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "acme", parsed.Account)
	assert.Equal(t, "loader", parsed.User)
	assert.Equal(t, "SALES", parsed.Database)
	assert.Equal(t, "WH", parsed.Warehouse)
	assert.Equal(t, "READER", parsed.Role)
	assert.Equal(t, "nebula-extract", parsed.Application)
}

func TestDSNErrors(t *testing.T) {
	t.Run("no password", func(t *testing.T) {
		cfg := accountConfig()
		cfg.Credentials.Password = ""
		_, err := DSN(cfg)
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))
	})

	t.Run("oauth token replaces password", func(t *testing.T) {
		cfg := accountConfig()
		cfg.Credentials.Password = ""
		cfg.Credentials.Token = "oauth-token"
		_, err := DSN(cfg)
		assert.NoError(t, err)
	})
}

func TestSnowflakeSourceRejectsConfig(t *testing.T) {
	assert.Equal(t, core.FamilySingleShot, NewSnowflakeSource().Family())

	suite := sdk.NewTestSuite(t)

	t.Run("missing account", func(t *testing.T) {
		cfg := accountConfig()
		delete(cfg.Options, "account")
		suite.TestRejectsConfig(NewSnowflakeSource(), cfg)
	})

	t.Run("missing query", func(t *testing.T) {
		cfg := accountConfig()
		cfg.Query = ""
		suite.TestRejectsConfig(NewSnowflakeSource(), cfg)
	})

	t.Run("missing password", func(t *testing.T) {
		cfg := accountConfig()
		cfg.Credentials.Password = ""
		suite.TestRejectsConfig(NewSnowflakeSource(), cfg)
	})
}
