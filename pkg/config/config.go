package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "installd.toml"

	// SystemConfigPath is where the service looks when no path is given.
	SystemConfigPath = "/etc/installd/" + ConfigFileName

	// DefaultTargetDir is the mount point of the system being installed.
	DefaultTargetDir = "/mnt"

	// DefaultRecordFile is the install record path, relative to the target.
	DefaultRecordFile = "var/lib/installd/install.lock"

	// DefaultTimeout is the default phase timeout.
	DefaultTimeout = 30 * time.Minute

	// DefaultListen is the default address of the HTTP bridge.
	DefaultListen = "127.0.0.1:9380"

	// DefaultCloneDepth is the default shallow clone depth.
	DefaultCloneDepth = 1

	// DefaultRetryAttempts is the default number of HTTP retry attempts.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the default delay between retries.
	DefaultRetryDelay = 2 * time.Second

	// DefaultRegistrationURL is the default subscription service.
	DefaultRegistrationURL = "https://scc.suse.com"

	// DefaultRegistrationTimeout bounds a single registration request.
	DefaultRegistrationTimeout = 60 * time.Second

	// DefaultUserAgent is sent with every outgoing HTTP request.
	DefaultUserAgent = "installd/1.0"
)

// BusKind selects the D-Bus bus the service is exported on.
type BusKind string

const (
	BusSystem  BusKind = "system"
	BusSession BusKind = "session"
)

// Config represents the parsed and validated configuration.
type Config struct {
	General      GeneralConfig
	Server       ServerConfig
	DBus         DBusConfig
	HTTP         HTTPConfig
	Git          GitConfig
	Network      NetworkConfig
	Registration RegistrationConfig
	Repositories []Repository
	Products     []Product
	configPath   string
}

// GeneralConfig holds general settings.
type GeneralConfig struct {
	TargetDir string
	// RecordFile is relative to TargetDir unless absolute.
	RecordFile string
	Timeout    time.Duration
	LogLevel   string
	LogFormat  string
}

// ServerConfig holds the HTTP bridge settings.
type ServerConfig struct {
	Listen         string
	AllowedOrigins []string
}

// DBusConfig holds the D-Bus exporter settings.
type DBusConfig struct {
	Enabled bool
	Bus     BusKind
}

// HTTPConfig holds settings for HTTP repositories.
type HTTPConfig struct {
	UserAgent     string
	RetryAttempts int
	RetryDelay    time.Duration
}

// GitConfig holds Git-specific settings.
type GitConfig struct {
	ShallowClone bool
	CloneDepth   int
}

// NetworkConfig holds the network subsystem settings.
type NetworkConfig struct {
	Enabled bool
}

// RegistrationConfig holds the subscription service settings.
type RegistrationConfig struct {
	URL          string
	Timeout      time.Duration
	DistroTarget string
}

// ConfigFile represents the raw TOML structure for file I/O.
type ConfigFile struct {
	General      GeneralConfigFile      `toml:"general"`
	Server       ServerConfigFile       `toml:"server"`
	DBus         DBusConfigFile         `toml:"dbus"`
	HTTP         HTTPConfigFile         `toml:"http"`
	Git          GitConfigFile          `toml:"git"`
	Network      NetworkConfigFile      `toml:"network"`
	Registration RegistrationConfigFile `toml:"registration"`
	Repositories []RepositoryFile       `toml:"repository"`
	Products     []ProductFile          `toml:"product"`
}

// GeneralConfigFile is the raw TOML structure for general settings.
type GeneralConfigFile struct {
	TargetDir  string `toml:"target_dir"`
	RecordFile string `toml:"record_file"`
	Timeout    string `toml:"timeout"`
	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"`
}

// ServerConfigFile is the raw TOML structure for the HTTP bridge.
type ServerConfigFile struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

// DBusConfigFile is the raw TOML structure for the D-Bus exporter.
type DBusConfigFile struct {
	Enabled *bool  `toml:"enabled"`
	Bus     string `toml:"bus"`
}

// HTTPConfigFile is the raw TOML structure for HTTP settings.
type HTTPConfigFile struct {
	UserAgent     string `toml:"user_agent"`
	RetryAttempts *int   `toml:"retry_attempts"`
	RetryDelay    string `toml:"retry_delay"`
}

// GitConfigFile is the raw TOML structure for Git settings.
type GitConfigFile struct {
	ShallowClone *bool `toml:"shallow_clone"`
	CloneDepth   *int  `toml:"clone_depth"`
}

// NetworkConfigFile is the raw TOML structure for network settings.
type NetworkConfigFile struct {
	Enabled *bool `toml:"enabled"`
}

// RegistrationConfigFile is the raw TOML structure for registration.
type RegistrationConfigFile struct {
	URL          string `toml:"url"`
	Timeout      string `toml:"timeout"`
	DistroTarget string `toml:"distro_target"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	var cf ConfigFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg, err := parseConfigFile(&cf, path)
	if err != nil {
		return nil, err
	}
	cfg.configPath = path

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile returns the configuration in the working directory, or
// the system wide one when the working directory has none.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	candidates := []string{filepath.Join(cwd, ConfigFileName), SystemConfigPath}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("config file not found: %s", candidates[0])
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("config path not set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	cf := toConfigFile(c)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cf); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	c.configPath = path
	return nil
}

// Path returns the path to the config file.
func (c *Config) Path() string {
	return c.configPath
}

// RecordPath returns the absolute path of the install record.
func (c *Config) RecordPath() string {
	if filepath.IsAbs(c.General.RecordFile) {
		return c.General.RecordFile
	}
	return filepath.Join(c.General.TargetDir, c.General.RecordFile)
}

// GetRepository returns a repository by name.
func (c *Config) GetRepository(name string) (*Repository, bool) {
	for i := range c.Repositories {
		if c.Repositories[i].Name == name {
			return &c.Repositories[i], true
		}
	}
	return nil, false
}

// GetProduct returns a product by name.
func (c *Config) GetProduct(name string) (*Product, bool) {
	for i := range c.Products {
		if c.Products[i].Name == name {
			return &c.Products[i], true
		}
	}
	return nil, false
}

// AddRepository adds a repository to the configuration.
func (c *Config) AddRepository(repo Repository) error {
	if _, exists := c.GetRepository(repo.Name); exists {
		return fmt.Errorf("repository already exists: %s", repo.Name)
	}
	c.Repositories = append(c.Repositories, repo)
	return nil
}

// RemoveRepository removes a repository from the configuration. Products
// still referencing it keep the configuration from validating, so the
// repository is removed from them as well.
func (c *Config) RemoveRepository(name string) error {
	for i, repo := range c.Repositories {
		if repo.Name == name {
			c.Repositories = append(c.Repositories[:i], c.Repositories[i+1:]...)
			for j := range c.Products {
				c.Products[j].removeRepository(name)
			}
			return nil
		}
	}
	return fmt.Errorf("repository not found: %s", name)
}

// GetRepositoriesForProduct returns the repositories of a product in the
// order the product lists them.
func (c *Config) GetRepositoriesForProduct(productName string) ([]Repository, error) {
	product, ok := c.GetProduct(productName)
	if !ok {
		return nil, fmt.Errorf("product not found: %s", productName)
	}

	var repos []Repository
	for _, repoName := range product.Repositories {
		repo, ok := c.GetRepository(repoName)
		if !ok {
			return nil, fmt.Errorf("repository %s not found in product %s", repoName, productName)
		}
		repos = append(repos, *repo)
	}
	return repos, nil
}

// GetRepositoriesByTag returns all repositories with the specified tag.
func (c *Config) GetRepositoriesByTag(tag string) []Repository {
	var repos []Repository
	for _, repo := range c.Repositories {
		if repo.HasTag(tag) {
			repos = append(repos, repo)
		}
	}
	return repos
}

// AddProduct adds a new product to the configuration.
func (c *Config) AddProduct(prod Product) error {
	if _, exists := c.GetProduct(prod.Name); exists {
		return fmt.Errorf("product already exists: %s", prod.Name)
	}
	c.Products = append(c.Products, prod)
	return nil
}

// RemoveProduct removes a product from the configuration.
func (c *Config) RemoveProduct(name string) error {
	for i, prod := range c.Products {
		if prod.Name == name {
			c.Products = append(c.Products[:i], c.Products[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("product not found: %s", name)
}

// AddRepoToProduct adds a repository to an existing product.
func (c *Config) AddRepoToProduct(productName, repoName string) error {
	if _, ok := c.GetRepository(repoName); !ok {
		return fmt.Errorf("repository not found: %s", repoName)
	}

	prod, ok := c.GetProduct(productName)
	if !ok {
		return fmt.Errorf("product not found: %s", productName)
	}
	if prod.HasRepository(repoName) {
		return fmt.Errorf("repository %s already in product %s", repoName, productName)
	}
	prod.Repositories = append(prod.Repositories, repoName)
	return nil
}

func parseConfigFile(cf *ConfigFile, configPath string) (*Config, error) {
	cfg := NewDefaultConfig()

	configDir := filepath.Dir(configPath)
	if !filepath.IsAbs(configDir) {
		absConfigDir, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		configDir = absConfigDir
	}

	// General
	if cf.General.TargetDir != "" {
		targetDir, err := ResolvePath(configDir, cf.General.TargetDir)
		if err != nil {
			return nil, fmt.Errorf("failed to expand target_dir: %w", err)
		}
		cfg.General.TargetDir = targetDir
	}

	if cf.General.RecordFile != "" {
		cfg.General.RecordFile = filepath.Clean(ExpandEnv(cf.General.RecordFile))
	}

	if cf.General.Timeout != "" {
		timeout, err := time.ParseDuration(cf.General.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timeout: %w", err)
		}
		cfg.General.Timeout = timeout
	}

	if cf.General.LogLevel != "" {
		cfg.General.LogLevel = cf.General.LogLevel
	}
	if cf.General.LogFormat != "" {
		cfg.General.LogFormat = cf.General.LogFormat
	}

	// Server
	if cf.Server.Listen != "" {
		cfg.Server.Listen = cf.Server.Listen
	}
	cfg.Server.AllowedOrigins = cf.Server.AllowedOrigins

	// D-Bus
	if cf.DBus.Enabled != nil {
		cfg.DBus.Enabled = *cf.DBus.Enabled
	}
	if cf.DBus.Bus != "" {
		cfg.DBus.Bus = BusKind(cf.DBus.Bus)
	}

	// HTTP
	if cf.HTTP.UserAgent != "" {
		cfg.HTTP.UserAgent = cf.HTTP.UserAgent
	}

	if cf.HTTP.RetryAttempts != nil {
		cfg.HTTP.RetryAttempts = *cf.HTTP.RetryAttempts
	}

	if cf.HTTP.RetryDelay != "" {
		delay, err := time.ParseDuration(cf.HTTP.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("failed to parse retry_delay: %w", err)
		}
		cfg.HTTP.RetryDelay = delay
	}

	// Git
	if cf.Git.ShallowClone != nil {
		cfg.Git.ShallowClone = *cf.Git.ShallowClone
	}
	if cf.Git.CloneDepth != nil {
		cfg.Git.CloneDepth = *cf.Git.CloneDepth
	}

	// Network
	if cf.Network.Enabled != nil {
		cfg.Network.Enabled = *cf.Network.Enabled
	}

	// Registration
	if cf.Registration.URL != "" {
		cfg.Registration.URL = ExpandEnv(cf.Registration.URL)
	}
	if cf.Registration.Timeout != "" {
		timeout, err := time.ParseDuration(cf.Registration.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse registration timeout: %w", err)
		}
		cfg.Registration.Timeout = timeout
	}
	cfg.Registration.DistroTarget = cf.Registration.DistroTarget

	for _, rf := range cf.Repositories {
		cfg.Repositories = append(cfg.Repositories, Repository{
			Name:    rf.Name,
			URL:     ExpandEnv(rf.URL),
			Type:    RepositoryType(rf.Type),
			Branch:  rf.Branch,
			Tag:     rf.Tag,
			Commit:  rf.Commit,
			Shallow: rf.Shallow,
			Depth:   rf.Depth,
			Tags:    rf.Tags,
		})
	}

	for _, pf := range cf.Products {
		cfg.Products = append(cfg.Products, Product{
			Name:         pf.Name,
			DisplayName:  pf.DisplayName,
			Description:  pf.Description,
			Version:      pf.Version,
			Arch:         pf.Arch,
			Repositories: pf.Repositories,
			Registration: RegistrationMode(pf.Registration),
		})
	}

	return cfg, nil
}

func toConfigFile(c *Config) *ConfigFile {
	cf := &ConfigFile{}

	cf.General = GeneralConfigFile{
		TargetDir:  c.General.TargetDir,
		RecordFile: c.General.RecordFile,
		Timeout:    c.General.Timeout.String(),
		LogLevel:   c.General.LogLevel,
		LogFormat:  c.General.LogFormat,
	}

	cf.Server = ServerConfigFile{
		Listen:         c.Server.Listen,
		AllowedOrigins: c.Server.AllowedOrigins,
	}

	cf.DBus.Enabled = &c.DBus.Enabled
	cf.DBus.Bus = string(c.DBus.Bus)

	cf.HTTP.UserAgent = c.HTTP.UserAgent
	cf.HTTP.RetryAttempts = &c.HTTP.RetryAttempts
	cf.HTTP.RetryDelay = c.HTTP.RetryDelay.String()

	cf.Git.ShallowClone = &c.Git.ShallowClone
	cf.Git.CloneDepth = &c.Git.CloneDepth

	cf.Network.Enabled = &c.Network.Enabled

	cf.Registration = RegistrationConfigFile{
		URL:          c.Registration.URL,
		Timeout:      c.Registration.Timeout.String(),
		DistroTarget: c.Registration.DistroTarget,
	}

	for _, repo := range c.Repositories {
		cf.Repositories = append(cf.Repositories, RepositoryFile{
			Name:    repo.Name,
			URL:     repo.URL,
			Type:    string(repo.Type),
			Branch:  repo.Branch,
			Tag:     repo.Tag,
			Commit:  repo.Commit,
			Shallow: repo.Shallow,
			Depth:   repo.Depth,
			Tags:    repo.Tags,
		})
	}

	for _, prod := range c.Products {
		cf.Products = append(cf.Products, ProductFile{
			Name:         prod.Name,
			DisplayName:  prod.DisplayName,
			Description:  prod.Description,
			Version:      prod.Version,
			Arch:         prod.Arch,
			Repositories: prod.Repositories,
			Registration: string(prod.Registration),
		})
	}

	return cf
}

// NewDefaultConfig creates a new configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			TargetDir:  DefaultTargetDir,
			RecordFile: DefaultRecordFile,
			Timeout:    DefaultTimeout,
			LogLevel:   "info",
			LogFormat:  "text",
		},
		Server: ServerConfig{
			Listen: DefaultListen,
		},
		DBus: DBusConfig{
			Enabled: false,
			Bus:     BusSystem,
		},
		HTTP: HTTPConfig{
			UserAgent:     DefaultUserAgent,
			RetryAttempts: DefaultRetryAttempts,
			RetryDelay:    DefaultRetryDelay,
		},
		Git: GitConfig{
			ShallowClone: true,
			CloneDepth:   DefaultCloneDepth,
		},
		Network: NetworkConfig{
			Enabled: true,
		},
		Registration: RegistrationConfig{
			URL:     DefaultRegistrationURL,
			Timeout: DefaultRegistrationTimeout,
		},
	}
}
