package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/creachadair/atomicfile"

	tmos "github.com/oprelay/oprelay/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/oprelay/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return writeFile(path, buffer.Bytes(), 0644)
}

// WriteDefaultConfigFileIfNone writes the default config file to the root
// directory, unless one already exists.
func WriteDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/myawesomeapp/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.oprelay" by default, but could be changed via $OPHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb
# * goleveldb (github.com/syndtr/goleveldb - most popular implementation)
#   - pure go
#   - stable
# * cleveldb (uses levigo wrapper)
#   - fast
#   - requires gcc
#   - use cleveldb build tag (go build -tags cleveldb)
# * boltdb (uses etcd's fork of bolt - github.com/etcd-io/bbolt)
#   - EXPERIMENTAL
#   - may be faster is some use-cases (random reads - indexer)
#   - use boltdb build tag (go build -tags boltdb)
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging, including package level options
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

##### additional base config options #####

# Path to the JSON file containing the remote chain identity, trusted genesis
# hash, protocol params and host allocations
genesis_file = "{{ js .BaseConfig.Genesis }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###          Bridge State Configuration Options     ###
#######################################################
[store]

# Address receiving the retained half of fraud and prune payouts, as hex.
# Leave empty to burn the retained half to the zero address.
retention_address = "{{ .Store.RetentionAddress }}"

#######################################################
###            Event Log Configuration Options      ###
#######################################################
[eventlog]

# The sinks lifecycle events are indexed into.
#
# Options:
#   1) "null" - discard events
#   2) "kv" (default) - embedded key/value store; keeps the canonical
#      light-block encoding per submission and serves lookups, so fraud
#      evidence can be rebuilt from the sink
#   3) "psql" - append-only audit log in a PostgreSQL database; requires
#      psql_conn
sinks = [{{ range .EventLog.Sinks }}{{ printf "%q, " . }}{{end}}]

# The PostgreSQL connection configuration, the connection format:
#   postgresql://<user>:<password>@<host>:<port>/<db>?<opts>
psql_conn = "{{ .EventLog.PsqlConn }}"

#######################################################
###       RPC Server Configuration Options          ###
#######################################################
[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# A list of origins a cross-domain request can be executed from
# Default value '[]' disables cors support
# Use '["*"]' to allow any origin
cors_allowed_origins = [{{ range .RPC.CORSAllowedOrigins }}{{ printf "%q, " . }}{{end}}]

# A list of methods the client is allowed to use with cross-domain requests
cors_allowed_methods = [{{ range .RPC.CORSAllowedMethods }}{{ printf "%q, " . }}{{end}}]

# A list of non simple headers the client is allowed to use with cross-domain requests
cors_allowed_headers = [{{ range .RPC.CORSAllowedHeaders }}{{ printf "%q, " . }}{{end}}]

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max_open_connections = {{ .RPC.MaxOpenConnections }}

# Maximum size of request body, in bytes
max_body_bytes = {{ .RPC.MaxBodyBytes }}

# Maximum size of request header, in bytes
max_header_bytes = {{ .RPC.MaxHeaderBytes }}

# The path to a file containing certificate that is used to create the HTTPS server.
# Might be either absolute path or path related to oprelay's config directory.
# If the certificate is signed by a certificate authority,
# the certFile should be the concatenation of the server's certificate, any intermediates,
# and the CA's certificate.
# NOTE: both tls_cert_file and tls_key_file must be present for oprelay to create HTTPS server.
# Otherwise, HTTP server is run.
tls_cert_file = "{{ .RPC.TLSCertFile }}"

# The path to a file containing matching private key that is used to create the HTTPS server.
# Might be either absolute path or path related to oprelay's config directory.
# NOTE: both tls_cert_file and tls_key_file must be present for oprelay to create HTTPS server.
# Otherwise, HTTP server is run.
tls_key_file = "{{ .RPC.TLSKeyFile }}"

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max_open_connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a new test root with a default config and test
// genesis under a fresh temporary directory inside dir.
func ResetTestRoot(dir, testName string) (*Config, error) {
	return ResetTestRootWithChainID(dir, testName, "")
}

// ResetTestRootWithChainID is ResetTestRoot with a custom remote chain ID.
func ResetTestRootWithChainID(dir, testName, chainID string) (*Config, error) {
	// create a unique, concurrency-safe test directory under dir
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s-%s_", chainID, testName))
	if err != nil {
		return nil, err
	}
	EnsureRoot(rootDir)
	if err := WriteDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	genesisFilePath := filepath.Join(rootDir, defaultGenesisJSONPath)
	if !tmos.FileExists(genesisFilePath) {
		if chainID == "" {
			chainID = "oprelay-test"
		}
		testGenesis := fmt.Sprintf(testGenesisFmt, chainID)
		if err := writeFile(genesisFilePath, []byte(testGenesis), 0644); err != nil {
			return nil, err
		}
	}

	config := TestConfig().SetRoot(rootDir)
	return config, nil
}

var testGenesisFmt = `{
  "chain_id": "%s",
  "genesis_hash": "6463F9C70D042DCCC3EA35E43D4BD16D4BEBF072528B4CBBEDB59AE1CFBEDE17",
  "params": {
    "bond_amount": "100",
    "fraud_period": "10"
  },
  "validators": [
    {
      "pub_key": "3B3D2D4AB00826E0A6C04C084B0E4A0B92B2963F442A9ED64F5D9C0F8A5A3E6B",
      "power": "10",
      "name": ""
    }
  ],
  "allocations": [
    {
      "address": "25E52E3464FD1A011BA3D3DE725F9793E70CE159",
      "amount": "1000000"
    }
  ]
}`

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if _, err := atomicfile.WriteAll(filePath, bytes.NewReader(contents), mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
