package config

import (
	"compress/gzip"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/semmidev/wpfleet/internal/domain"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Sites     SitesConfig     `mapstructure:"sites"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Restore   RestoreConfig   `mapstructure:"restore"`
	Migration MigrationConfig `mapstructure:"migration"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	MetricsFile string `mapstructure:"metrics_file"`
}

type SitesConfig struct {
	Root      string `mapstructure:"root"`
	Marker    string `mapstructure:"marker"`
	ScanDepth int    `mapstructure:"scan_depth"`
}

type BackupConfig struct {
	ScratchDir  string          `mapstructure:"scratch_dir"`
	LocalPath   string          `mapstructure:"local_path"`
	Concurrency int             `mapstructure:"concurrency"`
	Schedule    string          `mapstructure:"schedule"`
	SiteTimeout time.Duration   `mapstructure:"site_timeout"`
	Retention   RetentionConfig `mapstructure:"retention"`

	// CompressionLevel is a gzip level, -2 (Huffman only) to 9.
	CompressionLevel int `mapstructure:"compression_level"`
}

type RetentionConfig struct {
	DailyKeep    int `mapstructure:"daily_keep"`
	WeeklyKeep   int `mapstructure:"weekly_keep"`
	MonthlyKeep  int `mapstructure:"monthly_keep"`
	WeekBoundary int `mapstructure:"week_boundary"`
	MonthDay     int `mapstructure:"month_day"`
}

type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Socket        string `mapstructure:"socket"`
	DefaultsFile  string `mapstructure:"defaults_file"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
	UserHost      string `mapstructure:"user_host"`
	DumpBinary    string `mapstructure:"dump_binary"`
	ClientBinary  string `mapstructure:"client_binary"`
}

type RemoteConfig struct {
	Type string `mapstructure:"type"`
	Root string `mapstructure:"root"`

	// S3 and MinIO
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`

	// rclone
	RcloneRemote string `mapstructure:"rclone_remote"`
	RcloneBinary string `mapstructure:"rclone_binary"`

	// Google Drive
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	RefreshToken     string `mapstructure:"refresh_token"`
	FolderID         string `mapstructure:"folder_id"`
}

type RestoreConfig struct {
	FallbackOwner string        `mapstructure:"fallback_owner"`
	FallbackGroup string        `mapstructure:"fallback_group"`
	MaxPairSkew   time.Duration `mapstructure:"max_pair_skew"`
}

type MigrationConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	KeyPath         string        `mapstructure:"key_path"`
	Password        string        `mapstructure:"password"`
	KnownHosts      string        `mapstructure:"known_hosts"`
	TrustOnFirstUse bool          `mapstructure:"trust_on_first_use"`
	RemotePath      string        `mapstructure:"remote_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

var remoteTypes = map[string]bool{
	"local":  true,
	"s3":     true,
	"minio":  true,
	"rclone": true,
	"gdrive": true,
}

// Load reads the YAML file at path. Any key can be overridden from the
// environment as WPFLEET_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("wpfleet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := domain.DefaultRetentionPolicy()

	v.SetDefault("app.name", "wpfleet")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("sites.root", "/var/www")
	v.SetDefault("sites.marker", "wp-config.php")
	v.SetDefault("sites.scan_depth", 3)

	v.SetDefault("backup.scratch_dir", "")
	v.SetDefault("backup.local_path", "/var/backups/wpfleet")
	v.SetDefault("backup.concurrency", 2)
	v.SetDefault("backup.schedule", "0 30 3 * * *")
	v.SetDefault("backup.site_timeout", 2*time.Hour)
	v.SetDefault("backup.compression_level", gzip.DefaultCompression)
	v.SetDefault("backup.retention.daily_keep", def.DailyKeep)
	v.SetDefault("backup.retention.weekly_keep", def.WeeklyKeep)
	v.SetDefault("backup.retention.monthly_keep", def.MonthlyKeep)
	v.SetDefault("backup.retention.week_boundary", def.WeekBoundary)
	v.SetDefault("backup.retention.month_day", def.MonthDay)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.defaults_file", "/root/.my.cnf")
	v.SetDefault("database.user_host", "localhost")
	v.SetDefault("database.dump_binary", "mysqldump")
	v.SetDefault("database.client_binary", "mysql")

	v.SetDefault("remote.type", "rclone")
	v.SetDefault("remote.root", "wpfleet")
	v.SetDefault("remote.use_ssl", true)
	v.SetDefault("remote.rclone_binary", "rclone")

	v.SetDefault("restore.fallback_owner", "www-data")
	v.SetDefault("restore.fallback_group", "www-data")
	v.SetDefault("restore.max_pair_skew", 36*time.Hour)

	v.SetDefault("migration.port", 22)
	v.SetDefault("migration.user", "root")
	v.SetDefault("migration.timeout", 30*time.Second)
	v.SetDefault("migration.remote_path", "/var/backups/wpfleet")
	v.SetDefault("migration.known_hosts", "/root/.ssh/known_hosts")
}

func (c *Config) Validate() error {
	if c.Sites.Root == "" {
		return fmt.Errorf("sites.root is required")
	}
	if c.Sites.Marker == "" {
		return fmt.Errorf("sites.marker is required")
	}
	if c.Sites.ScanDepth < 1 {
		return fmt.Errorf("sites.scan_depth must be at least 1")
	}

	if c.Backup.LocalPath == "" {
		return fmt.Errorf("backup.local_path is required")
	}
	if c.Backup.Concurrency < 1 {
		return fmt.Errorf("backup.concurrency must be at least 1")
	}
	if c.Backup.CompressionLevel < gzip.HuffmanOnly || c.Backup.CompressionLevel > gzip.BestCompression {
		return fmt.Errorf("backup.compression_level must be between %d and %d", gzip.HuffmanOnly, gzip.BestCompression)
	}
	if err := c.RetentionPolicy().Validate(); err != nil {
		return fmt.Errorf("backup.retention: %w", err)
	}

	if !remoteTypes[c.Remote.Type] {
		return fmt.Errorf("remote.type: unsupported type %q", c.Remote.Type)
	}
	switch c.Remote.Type {
	case "s3", "minio":
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote.bucket is required for %s", c.Remote.Type)
		}
		if c.Remote.Type == "minio" && c.Remote.Endpoint == "" {
			return fmt.Errorf("remote.endpoint is required for minio")
		}
	case "rclone":
		if c.Remote.RcloneRemote == "" {
			return fmt.Errorf("remote.rclone_remote is required for rclone")
		}
	case "gdrive":
		if c.Remote.FolderID == "" {
			return fmt.Errorf("remote.folder_id is required for gdrive")
		}
		if c.Remote.CredentialsFile == "" && (c.Remote.ClientSecretFile == "" || c.Remote.RefreshToken == "") {
			return fmt.Errorf("gdrive needs remote.credentials_file or remote.client_secret_file with remote.refresh_token")
		}
	}

	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("notify.telegram: bot_token and chat_id are required when enabled")
	}

	return nil
}

func (c *Config) RetentionPolicy() domain.RetentionPolicy {
	r := c.Backup.Retention
	return domain.RetentionPolicy{
		DailyKeep:    r.DailyKeep,
		WeeklyKeep:   r.WeeklyKeep,
		MonthlyKeep:  r.MonthlyKeep,
		WeekBoundary: r.WeekBoundary,
		MonthDay:     r.MonthDay,
	}
}

// MigrationReady reports whether a migration target host is configured.
func (c *Config) MigrationReady() error {
	if c.Migration.Host == "" {
		return fmt.Errorf("migration.host is required")
	}
	if c.Migration.KeyPath == "" && c.Migration.Password == "" {
		return fmt.Errorf("migration needs key_path or password")
	}
	if c.Migration.KnownHosts == "" {
		return fmt.Errorf("migration.known_hosts is required")
	}
	return nil
}
