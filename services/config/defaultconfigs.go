package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID passed to Embedded
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "ssid": "cobitis",
  "psk": "change-me",
  "ntp_server": "pool.ntp.org",
  "timezone": "UTC",
  "log_level": "info"
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
}
