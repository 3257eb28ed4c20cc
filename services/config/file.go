//go:build !rp2040 && !rp2350

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"cobitis-go/errcode"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// File is the host configuration document. Every field can be overridden by
// the named environment variable.
type File struct {
	SSID      string `yaml:"ssid" env:"COBITIS_SSID"`
	PSK       string `yaml:"psk" env:"COBITIS_PSK"`
	NTPServer string `yaml:"ntp_server" env:"COBITIS_NTP_SERVER" env-default:"pool.ntp.org"`
	Timezone  string `yaml:"timezone" env:"COBITIS_TIMEZONE" env-default:"UTC"`

	ListenAddr  string   `yaml:"listen_addr" env:"COBITIS_LISTEN_ADDR" env-default:":8080"`
	MetricsAddr string   `yaml:"metrics_addr" env:"COBITIS_METRICS_ADDR" env-default:":9100"`
	CORSOrigins []string `yaml:"cors_origins" env:"COBITIS_CORS_ORIGINS" env-separator:","`

	Log LogConfig `yaml:"log"`
	Sim SimConfig `yaml:"sim"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"COBITIS_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"COBITIS_LOG_FORMAT" env-default:"text"`
}

// SimConfig seeds the simulated hardware used by cmd/probe-sim.
type SimConfig struct {
	Temperature float64 `yaml:"temperature" env:"COBITIS_SIM_TEMPERATURE" env-default:"20.3"`
	ProbeVolts  float64 `yaml:"probe_volts" env:"COBITIS_SIM_PROBE_VOLTS" env-default:"0.4"`
	RSSI        int     `yaml:"rssi" env:"COBITIS_SIM_RSSI" env-default:"-58"`
}

// LoadFile reads path (YAML) and applies environment overrides. An optional
// .env in the working directory is loaded first. An empty path reads the
// environment only.
func LoadFile(path string) (*File, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errcode.Wrap(errcode.InvalidParams, "config.dotenv", err)
	}

	var f File
	var err error
	if path == "" {
		err = cleanenv.ReadEnv(&f)
	} else {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, &errcode.E{C: errcode.NotFound, Op: "config", Msg: "config file not found: " + path, Err: statErr}
		}
		err = cleanenv.ReadConfig(path, &f)
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "config", err)
	}
	return &f, nil
}

// Get implements Provider over the file's flat keys.
func (f *File) Get(key string) (string, error) {
	var v string
	switch key {
	case KeySSID:
		v = f.SSID
	case KeyPSK:
		v = f.PSK
	case KeyNTPServer:
		v = f.NTPServer
	case KeyTimezone:
		v = f.Timezone
	case KeyListenAddr:
		v = f.ListenAddr
	case KeyMetricsAddr:
		v = f.MetricsAddr
	case KeyCORSOrigins:
		v = strings.Join(f.CORSOrigins, ",")
	case KeyLogLevel:
		v = f.Log.Level
	case KeyLogFormat:
		v = f.Log.Format
	}
	if v == "" {
		return "", missing(key)
	}
	return v, nil
}
