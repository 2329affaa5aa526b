package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".vigilo"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the
// config file.
type Config struct {
	// Listen is the default listen address when --listen is not given.
	Listen string `yaml:"listen"`

	// Environment holds variables added to the environment of every
	// launched inferior, on top of the stub's own environment.
	Environment map[string]string `yaml:"environment"`

	// MaxPacketSize is read from the config file but not used: the stub
	// always advertises a packet size of 0x3fff bytes.
	MaxPacketSize int `yaml:"max-packet-size,omitempty"`

	// LogOutput is the default value for the --log-output flag.
	LogOutput string `yaml:"log-output,omitempty"`
}

// LoadConfig returns the on-disk configuration, writing a commented
// default file on first run. Any problem with the config file degrades to
// builtin defaults; a broken config must not keep the stub from starting.
func LoadConfig() *Config {
	conf := &Config{}

	path := GetConfigFilePath(configFile)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "config: cannot create %s: %v\n", filepath.Dir(path), err)
		return conf
	}

	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := ioutil.WriteFile(path, []byte(defaultConfig), 0644); werr != nil {
			fmt.Fprintf(os.Stderr, "config: cannot write default %s: %v\n", path, werr)
		}
		return conf
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: cannot read %s: %v\n", path, err)
		return conf
	}

	if err := yaml.Unmarshal(data, conf); err != nil {
		fmt.Fprintf(os.Stderr, "config: cannot parse %s: %v\n", path, err)
		return &Config{}
	}
	return conf
}

// SaveConfig writes conf back to the config file.
func SaveConfig(conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	path := GetConfigFilePath(configFile)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}

// GetConfigFilePath gets the full path to the given config file name. When
// the home directory cannot be determined the config lives under the
// current directory instead.
func GetConfigFilePath(file string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, configDir, file)
}

const defaultConfig = `# Configuration file for the vigilo debug stub.

# Every option below is commented out and shows its default; uncomment a
# line to change it.

# Default listen address used when --listen is not passed on the command line.
# listen: localhost:0

# Variables added to the environment of every launched inferior.
environment:
  # VAR: value

# Not used: the packet size advertised to the debugger is always 16383.
# max-packet-size: 16383

# Default value for the --log-output flag.
# log-output: stub
`
