package agent

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	gifMaxWidth     = 800
	gifTitleWidth   = 800
	gifTitleHeight  = 450
	gifFrameDelay   = 100 // 1/100s units
	gifTitleDelay   = 200
	gifLinePadding  = 4
	gifTextMargin   = 24
	gifMaxTaskLines = 20
)

var (
	gifBackground = color.RGBA{R: 24, G: 24, B: 27, A: 255}
	gifForeground = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	gifBadge      = color.RGBA{A: 200}
)

// RenderGIF writes an animated recording of a run to path: a title frame
// with the task followed by one frame per step screenshot, each labelled
// with its step number. Screenshots are read from dir; unreadable ones are
// skipped. The title frame is always written so a run without screenshots
// still gets a recording.
func RenderGIF(path, dir string, h *History) error {
	anim := &gif.GIF{}

	var frames []*image.RGBA
	var labels []string
	for _, s := range h.Steps {
		if s.Screenshot == "" {
			continue
		}
		img, err := decodeJPEG(filepath.Join(dir, s.Screenshot))
		if err != nil {
			continue
		}
		frames = append(frames, scaleToWidth(img, gifMaxWidth))
		labels = append(labels, fmt.Sprintf("Step %d", s.StepNumber))
	}

	width, height := gifTitleWidth, gifTitleHeight
	if len(frames) > 0 {
		b := frames[0].Bounds()
		width, height = b.Dx(), b.Dy()
	}

	addFrame(anim, titleFrame(width, height, h.Task), gifTitleDelay)
	for i, frame := range frames {
		drawBadge(frame, labels[i])
		addFrame(anim, frame, gifFrameDelay)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create gif directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create gif: %w", err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return f.Close()
}

func decodeJPEG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}

func scaleToWidth(src image.Image, maxWidth int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func addFrame(anim *gif.GIF, img *image.RGBA, delay int) {
	p := image.NewPaletted(img.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(p, p.Bounds(), img, image.Point{})
	anim.Image = append(anim.Image, p)
	anim.Delay = append(anim.Delay, delay)
}

func titleFrame(width, height int, task string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(gifBackground), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + gifLinePadding
	lines := wrapText(face, task, width-2*gifTextMargin)
	if len(lines) > gifMaxTaskLines {
		lines = append(lines[:gifMaxTaskLines-1], "...")
	}

	y := (height - len(lines)*lineHeight) / 2
	if y < gifTextMargin {
		y = gifTextMargin
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(gifForeground), Face: face}
	for _, line := range lines {
		x := (width - font.MeasureString(face, line).Ceil()) / 2
		if x < gifTextMargin {
			x = gifTextMargin
		}
		y += lineHeight
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
	return img
}

func drawBadge(img *image.RGBA, label string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil() + 2*gifLinePadding
	h := face.Metrics().Height.Ceil() + 2*gifLinePadding
	box := image.Rect(0, 0, w, h).Add(image.Pt(gifLinePadding, gifLinePadding))
	draw.Draw(img, box, image.NewUniform(gifBadge), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(gifForeground),
		Face: face,
		Dot:  fixed.P(box.Min.X+gifLinePadding, box.Min.Y+gifLinePadding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)
}

// wrapText breaks text into lines no wider than maxWidth pixels. Words wider
// than a line are hard-split.
func wrapText(face font.Face, text string, maxWidth int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, word := range words {
			for font.MeasureString(face, word).Ceil() > maxWidth && len(word) > 1 {
				cut := fitPrefix(face, word, maxWidth)
				if line != "" {
					lines = append(lines, line)
					line = ""
				}
				lines = append(lines, word[:cut])
				word = word[cut:]
			}
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if font.MeasureString(face, candidate).Ceil() > maxWidth && line != "" {
				lines = append(lines, line)
				line = word
				continue
			}
			line = candidate
		}
		lines = append(lines, line)
	}
	return lines
}

func fitPrefix(face font.Face, word string, maxWidth int) int {
	n := 1
	for n < len(word) && font.MeasureString(face, word[:n+1]).Ceil() <= maxWidth {
		n++
	}
	return n
}
