// pkg/config/config.go - configuration settings for the report engine.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML configuration file.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wsusreport", "Config.yaml")
	}
	return "Config.yaml"
}

// Configuration holds the configurable options for the report engine in YAML format
type Configuration struct {
	SnapshotPath      string `yaml:"SnapshotPath"`      // catalog snapshot document to report against
	OutputDir         string `yaml:"OutputDir"`         // where report artifacts are written
	ExportPath        string `yaml:"ExportPath"`        // superseded-updates CSV export
	LogDir            string `yaml:"LogDir"`            // session log directory
	LogLevel          string `yaml:"LogLevel"`          // ERROR, WARN, INFO, DEBUG
	AllComputersGroup string `yaml:"AllComputersGroup"` // distinguished superset group, excluded from rollups
	ExclusionDays     int    `yaml:"ExclusionDays"`     // age after which superseded updates are declined
	ReportDays        int    `yaml:"ReportDays"`        // compliance window for approved updates
	SkipDecline       bool   `yaml:"SkipDecline"`       // report superseded updates without declining
	Debug             bool   `yaml:"Debug"`
	Verbose           bool   `yaml:"Verbose"`
}

// LoadConfig loads the configuration from the default YAML file location.
func LoadConfig() (*Configuration, error) {
	return LoadConfigFile(ConfigPath)
}

// LoadConfigFile loads the configuration from a YAML file.
func LoadConfigFile(path string) (*Configuration, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Configuration file does not exist: %s", path)
		return nil, fmt.Errorf("configuration file does not exist: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read configuration file: %v", err)
		return nil, err
	}

	config := &Configuration{}
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Printf("Failed to parse configuration file: %v", err)
		return nil, err
	}
	applyDefaults(config, filepath.Dir(path))

	// Create required directories
	for _, dir := range []string{config.OutputDir, config.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %v", dir, err)
		}
	}

	return config, nil
}

// SaveConfig saves the current configuration to a YAML file.
func SaveConfig(config *Configuration, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		log.Printf("Failed to serialize configuration: %v", err)
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		log.Printf("Failed to create configuration directory: %v", err)
		return err
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		log.Printf("Failed to write configuration file: %v", err)
		return err
	}

	return nil
}

// GetDefaultConfig provides default configuration values, with paths
// relative to the working directory.
func GetDefaultConfig() *Configuration {
	config := &Configuration{}
	applyDefaults(config, ".")
	return config
}

// applyDefaults fills empty fields, anchoring default paths under baseDir.
func applyDefaults(config *Configuration, baseDir string) {
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.AllComputersGroup == "" {
		config.AllComputersGroup = "All Computers"
	}
	if config.ExclusionDays == 0 {
		config.ExclusionDays = 90
	}
	if config.ReportDays == 0 {
		config.ReportDays = 30
	}
	if config.OutputDir == "" {
		config.OutputDir = filepath.Join(baseDir, "reports")
	}
	if config.LogDir == "" {
		config.LogDir = filepath.Join(baseDir, "logs")
	}
	if config.ExportPath == "" {
		config.ExportPath = filepath.Join(config.OutputDir, "superseded-updates.csv")
	}
}
