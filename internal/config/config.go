package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Telegram struct {
		Enabled     bool
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Stock struct {
		// порог «мало», ниже которого шлём оповещение (в базовых единицах товара)
		LowThreshold float64 `mapstructure:"low_threshold"`
	} `mapstructure:"stock"`

	Expiry struct {
		SweepEnabled  bool          `mapstructure:"sweep_enabled"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"expiry"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	// Позже можно будет переопределять через ENV (APP_*), если надо
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("expiry.sweep_interval", time.Hour)
	v.SetDefault("stock.low_threshold", 0)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
