// backendYT/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "BACKENDYT"

type Config struct {
	Port        string `mapstructure:"PORT" yaml:"port"`
	BaseURL     string `mapstructure:"BASE" yaml:"base"`
	StorageDir  string `mapstructure:"STORAGE_DIR" yaml:"storage_dir"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS" yaml:"cors_origins"`

	YtDlpBin       string        `mapstructure:"YTDLP_BIN" yaml:"ytdlp_bin"`
	YtDlpTimeout   time.Duration `mapstructure:"YTDLP_TIMEOUT" yaml:"ytdlp_timeout"`
	YtDlpCookies   string        `mapstructure:"YTDLP_COOKIES" yaml:"ytdlp_cookies"`
	YtDlpExtraArgs string        `mapstructure:"YTDLP_EXTRA_ARGS" yaml:"ytdlp_extra_args"`

	FFBin       string        `mapstructure:"FF_BIN" yaml:"ff_bin"`
	FFTimeout   time.Duration `mapstructure:"FF_TIMEOUT" yaml:"ff_timeout"`
	FFExtraArgs string        `mapstructure:"FF_EXTRA_ARGS" yaml:"ff_extra_args"`

	MaxInputSize        int64         `mapstructure:"MAX_INPUT_SIZE" yaml:"max_input_size"`
	MaxConcurrency      int           `mapstructure:"MAX_CONCURRENCY" yaml:"max_concurrency"`
	QueueSize           int           `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	DownloadGrace       time.Duration `mapstructure:"DOWNLOAD_GRACE" yaml:"download_grace"`
	OutputLocalLifetime time.Duration `mapstructure:"OUTPUT_LOCAL_LIFETIME" yaml:"output_local_lifetime"`

	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU" yaml:"throttle_cpu"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM" yaml:"throttle_freemem"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK" yaml:"throttle_freedisk"`
}

// Origins splits CORSOrigins into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment. An empty path searches the default config locations.
func Load(path string) (*Config, error) {
	vp := viper.New()

	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("STORAGE_DIR", "")
	vp.SetDefault("CORS_ORIGINS", "*")
	vp.SetDefault("YTDLP_BIN", "yt-dlp")
	vp.SetDefault("YTDLP_TIMEOUT", "10m")
	vp.SetDefault("YTDLP_COOKIES", "")
	vp.SetDefault("YTDLP_EXTRA_ARGS", "")
	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FF_TIMEOUT", "10m")
	vp.SetDefault("FF_EXTRA_ARGS", "")
	vp.SetDefault("MAX_INPUT_SIZE", "2GB")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("QUEUE_SIZE", 100)
	vp.SetDefault("DOWNLOAD_GRACE", "25s")
	vp.SetDefault("OUTPUT_LOCAL_LIFETIME", "1h")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0")
	vp.SetDefault("THROTTLE_FREEDISK", "500MB")

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		vp.SetConfigName("backendyt_config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/backendyt/")

		if err := vp.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts the value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
