package messip

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Default ports, per spec section 6.
const (
	DefaultPort     = 9200
	DefaultHTTPPort = 9201
)

// ConfigPath is the optional single-line config file location.
const ConfigPath = "/usr/etc/messip"

// FileConfig is the parsed contents of ConfigPath:
// "<host> <port> <http_port> <path>".
type FileConfig struct {
	Host     string
	Port     int
	HTTPPort int
	Path     string
}

// ReadFileConfig reads and parses ConfigPath. A missing file is not an
// error: callers fall back to defaults.
func ReadFileConfig() (FileConfig, bool) {
	return readFileConfigAt(ConfigPath)
}

func readFileConfigAt(path string) (FileConfig, bool) {
	f, err := os.Open(path)
	if err != nil {
		return FileConfig{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return FileConfig{}, false
	}
	fields := strings.Fields(scanner.Text())
	cfg := FileConfig{Host: "localhost", Port: DefaultPort, HTTPPort: DefaultHTTPPort}
	if len(fields) > 0 {
		cfg.Host = fields[0]
	}
	if len(fields) > 1 {
		if p, err := strconv.Atoi(fields[1]); err == nil {
			cfg.Port = p
		}
	}
	if len(fields) > 2 {
		if p, err := strconv.Atoi(fields[2]); err == nil {
			cfg.HTTPPort = p
		}
	}
	if len(fields) > 3 {
		cfg.Path = fields[3]
	}
	return cfg, true
}

// ResolveHost applies the layered resolution order: explicit argument,
// else the config file, else "localhost".
func ResolveHost(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg, ok := ReadFileConfig(); ok && cfg.Host != "" {
		return cfg.Host
	}
	return "localhost"
}

// ResolvePort applies the same layered resolution for the control port.
func ResolvePort(explicit int) int {
	if explicit != 0 {
		return explicit
	}
	if cfg, ok := ReadFileConfig(); ok && cfg.Port != 0 {
		return cfg.Port
	}
	return DefaultPort
}

// ResolveHTTPPort applies the same layered resolution for the HTTP
// introspection port.
func ResolveHTTPPort(explicit int) int {
	if explicit != 0 {
		return explicit
	}
	if cfg, ok := ReadFileConfig(); ok && cfg.HTTPPort != 0 {
		return cfg.HTTPPort
	}
	return DefaultHTTPPort
}
