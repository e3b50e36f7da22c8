package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	// FormatSource 表示输出沿用原图格式（gif/webp 等无编码器的输入回退为 jpeg）。
	FormatSource = ""
)

// ImageSize 对应主题里的一条图片定义（例如 product_page_main 700x700）。
type ImageSize struct {
	ID        string `json:"id" toml:"id" yaml:"id"`
	Width     int    `json:"width" toml:"width" yaml:"width"`
	Height    int    `json:"height" toml:"height" yaml:"height"`
	Quality   int    `json:"quality,omitempty" toml:"quality,omitempty" yaml:"quality,omitempty"`
	Format    string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
	KeepFrame bool   `json:"keep_frame,omitempty" toml:"keep_frame,omitempty" yaml:"keep_frame,omitempty"` // 输出严格为 Width×Height，空白处填白
}

const DefaultJPEGQuality = 90

var sizeIDRE = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// Validate 校验尺寸定义；ID 会作为输出目录名，必须是安全的路径片段。
func (s ImageSize) Validate() error {
	if !sizeIDRE.MatchString(s.ID) {
		return fmt.Errorf("invalid size id %q (lowercase letters, digits, _ and - only)", s.ID)
	}
	if s.Width <= 0 && s.Height <= 0 {
		return fmt.Errorf("size %q: width or height must be positive", s.ID)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("size %q: width and height must not be negative", s.ID)
	}
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("size %q: quality must be in [0,100]", s.ID)
	}
	switch strings.ToLower(s.Format) {
	case FormatSource, FormatJPEG, "jpg", FormatPNG:
	default:
		return fmt.Errorf("size %q: unsupported format %q", s.ID, s.Format)
	}
	return nil
}

// EffectiveQuality 返回 JPEG 编码质量（0 表示未配置，使用默认值）。
func (s ImageSize) EffectiveQuality() int {
	if s.Quality == 0 {
		return DefaultJPEGQuality
	}
	return s.Quality
}

func (s ImageSize) String() string {
	return fmt.Sprintf("%s(%dx%d)", s.ID, s.Width, s.Height)
}

// DefaultSizes 是未配置 sizes 时的内置主题尺寸。
func DefaultSizes() []ImageSize {
	return []ImageSize{
		{ID: "thumbnail", Width: 75, Height: 75},
		{ID: "small", Width: 240, Height: 300},
		{ID: "product_page_main", Width: 700, Height: 700},
	}
}
