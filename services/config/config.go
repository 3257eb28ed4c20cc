// Package config resolves the probe's settings. Firmware builds read a JSON
// object compiled into the image; host builds can also load a YAML file with
// environment overrides (see file.go).
package config

import (
	"encoding/json"
	"errors"
	"strconv"

	"cobitis-go/errcode"
)

// Keys read during initialisation.
const (
	KeySSID      = "ssid"
	KeyPSK       = "psk"
	KeyNTPServer = "ntp_server"
	KeyTimezone  = "timezone"

	KeyListenAddr  = "listen_addr"
	KeyMetricsAddr = "metrics_addr"
	KeyCORSOrigins = "cors_origins"
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
)

// ErrNotFound is returned (wrapped) for keys that have no value.
var ErrNotFound = errcode.NotFound

// Provider is a read-only key/value configuration source.
type Provider interface {
	Get(key string) (string, error)
}

// Map is an in-memory Provider.
type Map map[string]string

func (m Map) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", missing(key)
	}
	return v, nil
}

func missing(key string) error {
	return &errcode.E{C: errcode.NotFound, Op: "config", Msg: "missing key " + strconv.Quote(key)}
}

// GetOr returns the value of key, or def when it is not set.
func GetOr(p Provider, key, def string) string {
	v, err := p.Get(key)
	if err != nil {
		return def
	}
	return v
}

// Require reads every key, failing on the first one that is missing.
func Require(p Provider, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := p.Get(k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Embedded returns the compiled-in configuration for device. Scalar JSON
// values are exposed as strings; nested values are ignored.
func Embedded(device string) (Map, error) {
	if device == "" {
		return nil, errcode.Wrap(errcode.InvalidParams, "config", errors.New("missing device ID"))
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, &errcode.E{C: errcode.NotFound, Op: "config", Msg: "no embedded config for device " + device}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "config", err)
	}
	m := make(Map, len(obj))
	for k, v := range obj {
		switch x := v.(type) {
		case string:
			m[k] = x
		case float64:
			m[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			m[k] = strconv.FormatBool(x)
		case []any:
			m[k] = joinStrings(x)
		}
	}
	return m, nil
}

func joinStrings(xs []any) string {
	s := ""
	for _, x := range xs {
		if v, ok := x.(string); ok {
			if s != "" {
				s += ","
			}
			s += v
		}
	}
	return s
}
