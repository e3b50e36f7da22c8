package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/catresize/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示显式指定的配置文件缺少 path，且 CLI 也未给出 --path。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	SourceLocal      = "local"
	SourceStorefront = "storefront"

	// DefaultSource 是 source 的最终默认值（当 CLI 与配置文件都未指定时）。
	DefaultSource = SourceLocal
)

// 自动发现的配置文件名（按顺序查找，同时存在视为歧义）。
var fileNames = []string{"catresize.toml", "catresize.yaml", "catresize.yml"}

// TokenEnv 在配置文件未给出 storefront.token 时作为兜底。
const TokenEnv = "CATRESIZE_STOREFRONT_TOKEN"

// CLIArgs 是 CLI 暴露的入口，保留“是否显式指定”的信息，
// 以保证 --dry-run=false 能覆盖配置文件中的 dry_run = true。
type CLIArgs struct {
	Path       string
	ConfigFile string

	Source    string
	SourceSet bool

	DryRun    bool
	DryRunSet bool

	Strict    bool
	StrictSet bool
}

// FileConfig 对应 catresize.toml / catresize.yaml 的解析结构。
type FileConfig struct {
	Path       string             `toml:"path" yaml:"path"`
	Source     string             `toml:"source" yaml:"source"`
	Sizes      []domain.ImageSize `toml:"sizes" yaml:"sizes"`
	Storefront *StorefrontConfig  `toml:"storefront" yaml:"storefront"`
	DryRun     *bool              `toml:"dry_run" yaml:"dry_run"`
	Strict     *bool              `toml:"strict" yaml:"strict"`
}

type StorefrontConfig struct {
	BaseURL  string `toml:"base_url" yaml:"base_url"`
	ProxyURL string `toml:"proxy_url" yaml:"proxy_url"`
	Token    string `toml:"token" yaml:"token"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置。
type EffectiveConfig struct {
	Path string
	// ConfigFile 是实际读取的配置文件；未使用配置文件时为空。
	ConfigFile string

	Source string
	Sizes  []domain.ImageSize

	BaseURL  string
	ProxyURL string
	Token    string

	DryRun bool
	Strict bool
}

// CatalogDir 返回本地 catalog 目录 <path>/catalog。
func (c EffectiveConfig) CatalogDir() string { return filepath.Join(c.Path, "catalog") }

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: config file %q not found", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s: config file %q has no path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s: config file %q is invalid: %v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: config file %q is invalid", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) --config：必须存在，按扩展名选择解析器；文件缺少 path 且 CLI 未给 path 时报 config_missing_path
// 2) CLI 提供 path：在 <path> 下查找 catresize.{toml,yaml,yml}（可选）
// 3) 都未提供：在 cwd 下查找（可选）；path 缺省为 cwd
//
// 覆盖优先级：CLI > 配置文件 > 默认值。配置文件中的相对 path 以配置文件所在目录为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cliPath := ""
	if strings.TrimSpace(cli.Path) != "" {
		cliPath = absCleanFrom(cwdAbs, cli.Path)
	}

	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath := absCleanFrom(cwdAbs, cli.ConfigFile)
		fc, exists, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		path := cliPath
		if path == "" {
			if strings.TrimSpace(fc.Path) == "" {
				return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
			}
			path = absCleanFrom(filepath.Dir(cfgPath), fc.Path)
		}
		return merge(path, cli, fc, cfgPath)
	}

	dir := cwdAbs
	if cliPath != "" {
		dir = cliPath
	}
	cfgPath, err := discover(dir)
	if err != nil {
		return EffectiveConfig{}, err
	}
	var fc FileConfig
	if cfgPath != "" {
		if fc, _, err = readFileConfig(cfgPath); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	path := cliPath
	if path == "" {
		path = cwdAbs
		if strings.TrimSpace(fc.Path) != "" {
			path = absCleanFrom(cwdAbs, fc.Path)
		}
	}
	return merge(path, cli, fc, cfgPath)
}

// discover 在 dir 下查找配置文件；不存在时返回空串。
func discover(dir string) (string, error) {
	found := ""
	for _, name := range fileNames {
		p := filepath.Join(dir, name)
		fi, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if fi.IsDir() {
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: errors.New("config path is a directory")}
		}
		if found != "" {
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: fmt.Errorf("ambiguous: %q also exists", filepath.Base(found))}
		}
		found = p
	}
	return found, nil
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// source：CLI > config > 默认
	source := DefaultSource
	if cli.SourceSet {
		source = strings.ToLower(strings.TrimSpace(cli.Source))
	} else if strings.TrimSpace(fc.Source) != "" {
		source = strings.ToLower(strings.TrimSpace(fc.Source))
	}
	if err := validateSource(source); err != nil {
		return invalid(err)
	}

	dryRun := false
	if cli.DryRunSet {
		dryRun = cli.DryRun
	} else if fc.DryRun != nil {
		dryRun = *fc.DryRun
	}
	strict := false
	if cli.StrictSet {
		strict = cli.Strict
	} else if fc.Strict != nil {
		strict = *fc.Strict
	}

	sizes := fc.Sizes
	if len(sizes) == 0 {
		sizes = domain.DefaultSizes()
	}
	seen := make(map[string]struct{}, len(sizes))
	for _, s := range sizes {
		if err := s.Validate(); err != nil {
			return invalid(err)
		}
		if _, ok := seen[s.ID]; ok {
			return invalid(fmt.Errorf("duplicate size id %q", s.ID))
		}
		seen[s.ID] = struct{}{}
	}

	var sf StorefrontConfig
	if fc.Storefront != nil {
		sf = *fc.Storefront
	}
	baseURL := strings.TrimRight(strings.TrimSpace(sf.BaseURL), "/")
	if baseURL != "" {
		if err := validateHTTPURL("storefront.base_url", baseURL); err != nil {
			return invalid(err)
		}
	}
	if source == SourceStorefront && baseURL == "" {
		return invalid(errors.New("source=storefront requires storefront.base_url"))
	}
	proxyURL := strings.TrimSpace(sf.ProxyURL)
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid(fmt.Errorf("invalid storefront.proxy_url: %w", err))
		}
	}
	token := strings.TrimSpace(sf.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(TokenEnv))
	}

	return EffectiveConfig{
		Path:       absPath,
		ConfigFile: cfgPath,
		Source:     source,
		Sizes:      append([]domain.ImageSize(nil), sizes...),
		BaseURL:    baseURL,
		ProxyURL:   proxyURL,
		Token:      token,
		DryRun:     dryRun,
		Strict:     strict,
	}, nil
}

func validateSource(s string) error {
	switch s {
	case SourceLocal, SourceStorefront:
		return nil
	case "":
		return fmt.Errorf("source must not be empty")
	default:
		return fmt.Errorf("source must be local or storefront, got %q", s)
	}
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https: %q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 按扩展名读取并解析配置文件（.toml / .yaml / .yml）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		return FileConfig{}, true, fmt.Errorf("unsupported config format %q (want .toml or .yaml)", filepath.Ext(path))
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
