package am

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/teranos/avscheduler/errors"
)

// Discovery inputs, in precedence order after an explicit --config flag
const (
	DirEnvVar       = "AVSCHEDULER_DIR"
	HomeFileName    = ".avscheduler.toml"
	HomeDirKey      = "avscheduler_dir"
	DefaultDirPerms = 0750
)

// Load reads the configuration at path.
//
// Jobs and interpreters are decoded with BurntSushi/toml to keep their keys
// case-sensitive. Settings and web_server go through viper for defaults and
// AVSCHED_* environment overrides. Relative paths are resolved against the
// directory containing the file.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve config path %s", path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", abs)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrConfig), "failed to parse config file %s", abs)
	}

	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	v.SetConfigFile(abs)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", abs)
	}

	var scalars struct {
		Settings  SettingsConfig  `mapstructure:"settings"`
		WebServer WebServerConfig `mapstructure:"web_server"`
	}
	if err := v.Unmarshal(&scalars); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", abs)
	}
	cfg.Settings = scalars.Settings
	cfg.WebServer = scalars.WebServer

	if cfg.Interpreters == nil {
		cfg.Interpreters = make(map[string]string)
	}
	if cfg.Jobs == nil {
		cfg.Jobs = make(map[string]JobConfig)
	}

	cfg.path = abs
	cfg.resolvePaths(filepath.Dir(abs))
	return &cfg, nil
}

// LoadDefault discovers the config file and loads it
func LoadDefault(flagPath string) (*Config, error) {
	path, err := Discover(flagPath)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Discover finds the config file:
//
//  1. the --config flag
//  2. $AVSCHEDULER_DIR/avscheduler.toml
//  3. <avscheduler_dir>/avscheduler.toml, where avscheduler_dir is read from ~/.avscheduler.toml
//  4. ./avscheduler.toml (or the directory its avscheduler_dir key points to)
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}

	if dir := os.Getenv(DirEnvVar); dir != "" && isDir(dir) {
		return filepath.Join(dir, DefaultFileName), nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		if dir := readDirPointer(filepath.Join(home, HomeFileName)); dir != "" {
			return filepath.Join(dir, DefaultFileName), nil
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, DefaultFileName)
		if dir := readDirPointer(local); dir != "" {
			return filepath.Join(dir, DefaultFileName), nil
		}
		if isFile(local) {
			return local, nil
		}
	}

	return "", errors.WithHintf(
		errors.Wrap(errors.ErrConfig, "no avscheduler configuration found"),
		"pass --config, set %s, or create ./%s", DirEnvVar, DefaultFileName)
}

// readDirPointer returns the avscheduler_dir value of a pointer file when it
// names an existing directory.
func readDirPointer(path string) string {
	var pointer map[string]interface{}
	if _, err := toml.DecodeFile(path, &pointer); err != nil {
		return ""
	}
	dir, _ := pointer[HomeDirKey].(string)
	if dir == "" || !isDir(dir) {
		return ""
	}
	return dir
}

func (c *Config) resolvePaths(base string) {
	c.Settings.DBPath = resolve(base, c.Settings.DBPath)
	c.Settings.LogFile = resolve(base, c.Settings.LogFile)
	for id, job := range c.Jobs {
		job.EnvFile = resolve(base, job.EnvFile)
		c.Jobs[id] = job
	}
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
