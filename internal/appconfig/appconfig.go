package appconfig

import (
	"bytes"
	"errors"
	"html/template"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// Config holds all configuration details
type Config struct {
	Host      string          `yaml:"host"`
	BasePath  string          `yaml:"basePath"`
	Company   CompanyConfig   `yaml:"company"`
	Database  DatabaseConfig  `yaml:"database"`
	Pulsar    PulsarConfig    `yaml:"pulsar"`
	AWS       AWSConfig       `yaml:"aws"`
	Roster    RosterConfig    `yaml:"roster"`
	Providers ProvidersConfig `yaml:"providers"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// CompanyConfig identifies the company the roster belongs to
type CompanyConfig struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
}

// DatabaseConfig defines the database connection details
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Source string `yaml:"source"`
}

// PulsarConfig defines the messaging system connection details
type PulsarConfig struct {
	URL           string `yaml:"url"`
	TopicProducer string `yaml:"topicProducer"`
	TopicConsumer string `yaml:"topicConsumer"`
	Subscription  string `yaml:"subscription"`
}

// AWSConfig defines the region plus the email and secrets settings
type AWSConfig struct {
	Region        string `yaml:"region"`
	FromEmail     string `yaml:"fromEmail"`
	HelpdeskEmail string `yaml:"helpdeskEmail"`
	SecretsPrefix string `yaml:"secretsPrefix"`
}

// RosterConfig points at the canonical users/groups files
type RosterConfig struct {
	UsersPath  string `yaml:"usersPath"`
	GroupsPath string `yaml:"groupsPath"`
}

// ReconcileConfig bounds a reconciliation pass
type ReconcileConfig struct {
	WorkersPerProvider int `yaml:"workersPerProvider"`
	TimeoutMinutes     int `yaml:"timeoutMinutes"`
}

// ProviderConfig is the per-vendor block. TokenSecret names a key under
// aws.secretsPrefix in Secrets Manager, not a literal secret.
type ProviderConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"baseUrl"`
	TokenSecret string `yaml:"tokenSecret"`
}

// ProvidersConfig enables and configures each identity provider
type ProvidersConfig struct {
	GitHub          GitHubConfig          `yaml:"github"`
	GoogleWorkspace GoogleWorkspaceConfig `yaml:"googleWorkspace"`
	Okta            ProviderConfig        `yaml:"okta"`
	Ramp            ProviderConfig        `yaml:"ramp"`
	Zoom            ProviderConfig        `yaml:"zoom"`
}

type GitHubConfig struct {
	ProviderConfig `yaml:",inline"`
	Org            string `yaml:"org"`
}

type GoogleWorkspaceConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Domain              string `yaml:"domain"`
	ImpersonateUser     string `yaml:"impersonateUser"`
	CredentialsJSONPath string `yaml:"credentialsJsonPath"`
}

// LoadConfig loads and parses the configuration from a given file path
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		err := errors.New("config file path is required")
		log.Fatal().Err(err).Msg("config file not provided")
		return nil, err
	}

	// Parse the template file
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		log.Fatal().Err(err).Msg("error parsing config file template")
		return nil, err
	}

	// Create a map of environment variables
	envVars := loadEnvVars()

	// Execute the template with environment variables
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, envVars)
	if err != nil {
		log.Fatal().Err(err).Msg("error executing config file template")
		return nil, err
	}

	// Load and unmarshal the YAML
	var config Config
	if err := yaml.Unmarshal(buf.Bytes(), &config); err != nil {
		log.Fatal().Err(err).Msg("failed to unmarshal config YAML")
		return nil, err
	}

	return &config, nil
}

// loadEnvVars loads environment variables into a map
func loadEnvVars() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) == 2 {
			envVars[kv[0]] = kv[1]
		}
	}
	return envVars
}
