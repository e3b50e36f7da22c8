package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // 注册 GIF 解码器（目录里偶尔有动图首帧）
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器

	"github.com/John-Robertt/catresize/internal/domain"
)

// DecodeError 表示原图无法解码（损坏或格式不支持），上层映射为 decode_failed。
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode original: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Decode 解码原图，返回图片与格式名（jpeg/png/gif/webp）。
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: errors.New("empty image data")}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", &DecodeError{Err: errors.New("invalid image dimensions")}
	}
	return img, format, nil
}

// FitBox 计算在 w×h 框内保持宽高比的目标尺寸。
//
// 规则：
// - w 或 h 为 0 时只按另一边约束
// - 不放大：原图已小于框时保持原尺寸
// - 结果至少为 1x1
func FitBox(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if w <= 0 {
		w = srcW
	}
	if h <= 0 {
		h = srcH
	}
	if srcW <= w && srcH <= h {
		return srcW, srcH
	}

	// 用整数比较选出更紧的一边，避免浮点误差。
	var dw, dh int
	if srcW*h >= srcH*w {
		dw = w
		dh = srcH * w / srcW
	} else {
		dh = h
		dw = srcW * h / srcH
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}

// Scale 按 size 缩放图片；KeepFrame 时把结果居中贴到 W×H 的白底画布上。
func Scale(src image.Image, size domain.ImageSize) image.Image {
	sb := src.Bounds()
	dw, dh := FitBox(sb.Dx(), sb.Dy(), size.Width, size.Height)

	scaled := image.NewRGBA(image.Rect(0, 0, dw, dh))
	if dw == sb.Dx() && dh == sb.Dy() {
		draw.Draw(scaled, scaled.Bounds(), src, sb.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sb, draw.Src, nil)
	}

	if !size.KeepFrame || size.Width <= 0 || size.Height <= 0 {
		return scaled
	}
	frame := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	off := image.Pt((size.Width-dw)/2, (size.Height-dh)/2)
	draw.Draw(frame, scaled.Bounds().Add(off), scaled, image.Point{}, draw.Over)
	return frame
}

// OutputFormat 决定输出编码：显式配置优先，否则沿用原图格式（无编码器的格式回退为 jpeg）。
func OutputFormat(srcFormat string, size domain.ImageSize) string {
	switch strings.ToLower(size.Format) {
	case domain.FormatPNG:
		return domain.FormatPNG
	case domain.FormatJPEG, "jpg":
		return domain.FormatJPEG
	}
	if srcFormat == domain.FormatPNG {
		return domain.FormatPNG
	}
	return domain.FormatJPEG
}

// OutputName 把原图文件名的扩展名替换为输出格式对应的扩展名（格式不变时保持原名）。
func OutputName(srcName, format string) string {
	ext := strings.ToLower(filepath.Ext(srcName))
	base := strings.TrimSuffix(srcName, filepath.Ext(srcName))
	switch format {
	case domain.FormatPNG:
		if ext == ".png" {
			return srcName
		}
		return base + ".png"
	default:
		if ext == ".jpg" || ext == ".jpeg" {
			return srcName
		}
		return base + ".jpg"
	}
}

// Encode 按 format 编码图片。
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var out bytes.Buffer
	switch format {
	case domain.FormatPNG:
		if err := png.Encode(&out, img); err != nil {
			return nil, err
		}
	default:
		if quality <= 0 || quality > 100 {
			quality = domain.DefaultJPEGQuality
		}
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// Render 把已解码的原图按 size 缩放并编码为 format。
func Render(img image.Image, format string, size domain.ImageSize) ([]byte, error) {
	return Encode(Scale(img, size), format, size.EffectiveQuality())
}

// FormatByName 按扩展名推断原图格式（规划阶段尚未解码时使用）。
func FormatByName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return domain.FormatPNG
	case ".jpg", ".jpeg":
		return domain.FormatJPEG
	case ".gif":
		return "gif"
	case ".webp":
		return "webp"
	default:
		return ""
	}
}
