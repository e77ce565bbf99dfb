package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/muesli/reflow/indent"
	"gopkg.in/yaml.v2"

	"github.com/vtrash/vtrash/internal/env"
)

var validate *validator.Validate

type Config struct {
	Core      Core      `yaml:"core"`
	Trash     Trash     `yaml:"trash"`
	Autoclean Autoclean `yaml:"autoclean"`
	Logging   Logging   `yaml:"logging"`
}

type Core struct {
	Force          bool `yaml:"force"`
	DryRun         bool `yaml:"dryrun"`
	Interactive    bool `yaml:"interactive"`
	AutoReplace    bool `yaml:"auto_replace"`
	AllowAutoclean bool `yaml:"allow_autoclean"`
	Verbose        bool `yaml:"verbose"`
}

type Trash struct {
	Directory string `yaml:"directory" validate:"required,validDir"`
	LockFile  string `yaml:"lock_file" validate:"required,excludesall=/\\"`
	MaxSize   string `yaml:"max_size" validate:"required,validSize"`
	MaxCount  int64  `yaml:"max_count" validate:"gt=0"`
}

type Autoclean struct {
	MaxAgeDays    int    `yaml:"max_age_days" validate:"gte=0"`
	SameNameLimit int    `yaml:"same_name_limit" validate:"gte=0"`
	MaxCount      int64  `yaml:"max_count" validate:"gte=0"`
	MaxSize       string `yaml:"max_size" validate:"omitempty,validSize"`
}

type Logging struct {
	Enabled  bool     `yaml:"enabled"`
	Level    string   `yaml:"level" validate:"oneof=debug info warn error"`
	Rotation Rotation `yaml:"rotation"`
}

type Rotation struct {
	MaxSize  string `yaml:"max_size" validate:"validSize"`
	MaxFiles int    `yaml:"max_files" validate:"gte=0"`
}

// Path returns the absolute trash directory, with "~" and environment
// variables expanded.
func (t Trash) Path() (string, error) {
	return expandPath(t.Directory)
}

// MaxSizeBytes returns the trash size limit in bytes.
func (t Trash) MaxSizeBytes() int64 {
	return mustSize(t.MaxSize)
}

// MaxSizeBytes returns the size the autoclean brings the trash down to, zero
// when unset.
func (a Autoclean) MaxSizeBytes() int64 {
	return mustSize(a.MaxSize)
}

// mustSize parses a size that already went through validation.
func mustSize(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0
	}
	return n
}

type configError struct {
	configPath string
	parser     parser
	err        error
}

type parser struct{}

func (p parser) getDefaultConfigContents() string {
	content, _ := yaml.Marshal(NewDefaultConfig())
	return string(content)
}

func (e configError) Error() string {
	return heredoc.Docf(`
		Couldn't read the "%s" config file.
		Please try again after creating it or specifying a valid config path.
		The recommended config path is %s (default).
		Example YAML file contents:
		---
		%s
		---
		Original error:
		%s
		`,
		e.configPath,
		env.VTRASH_CONFIG_PATH,
		e.parser.getDefaultConfigContents(),
		indent.String(e.err.Error(), 2),
	)
}

type parsingError struct {
	err error
}

func (e parsingError) Error() string {
	return fmt.Sprintf("failed to parse config: %v", e.err)
}

func (e parsingError) Unwrap() error {
	return e.err
}

func (p parser) ensureDirExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		slog.Warn("creating directory as it does not exist", "dir", dirPath)
		if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
			return err
		}
	}
	return nil
}

func (p parser) createConfigFile(path string) error {
	if err := p.ensureDirExists(filepath.Dir(path)); err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Warn("creating config file as it does not exist", "config-file", path)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := f.WriteString(p.getDefaultConfigContents()); err != nil {
			return err
		}
	}

	return nil
}

func (p parser) ensureConfigFile() (string, error) {
	path := env.VTRASH_CONFIG_PATH

	if err := p.createConfigFile(path); err != nil {
		return "", configError{
			configPath: path,
			parser:     p,
			err:        err,
		}
	}

	return path, nil
}

func (p parser) readConfigFile(path string) (Config, error) {
	cfg := NewDefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, configError{
			configPath: path,
			parser:     p,
			err:        err,
		}
	}

	// keys missing from the file keep their default
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, err
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return cfg, fmt.Errorf("validation error: field %s, %q is invalid", verrs[0].Namespace(), verrs[0].Value())
		}
		return cfg, err
	}

	checkLimits(cfg)
	return cfg, nil
}

func initParser() parser {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.Split(fld.Tag.Get("yaml"), ",")[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("validSize", validateSize)
	_ = validate.RegisterValidation("validDir", validateDirPath)

	return parser{}
}

// Parse reads the config file at path. An empty path means the default
// location, where a file with the default settings is created when missing.
func Parse(path string) (Config, error) {
	parser := initParser()

	var err error
	configPath := path
	if configPath == "" {
		configPath, err = parser.ensureConfigFile()
		if err != nil {
			return Config{}, parsingError{err: err}
		}
	}
	slog.Debug("config file found", "config-file", configPath)

	cfg, err := parser.readConfigFile(configPath)
	if err != nil {
		return Config{}, parsingError{err: err}
	}

	return cfg, nil
}
