package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"
	"strconv"
	"strings"

	"github.com/auditflow/auditflow/pkg/providers"
)

// TesseractClient shells out to a local tesseract binary. TSV output gives
// word-level boxes in pixel coordinates; they are normalized against the
// decoded image dimensions when the input is a recognizable image.
type TesseractClient struct {
	commandPath string
	language    string
}

// NewTesseractClient creates a client for the binary at commandPath.
func NewTesseractClient(commandPath, language string) (*TesseractClient, error) {
	if commandPath == "" {
		return nil, errors.New("tesseract command path is required")
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractClient{commandPath: commandPath, language: language}, nil
}

// Name implements providers.OCRClient.
func (c *TesseractClient) Name() string { return "tesseract" }

// Extract implements providers.OCRClient.
func (c *TesseractClient) Extract(ctx context.Context, content []byte, mimeType, language string) (*providers.Extraction, error) {
	lang := language
	if lang == "" {
		lang = c.language
	}

	cmd := exec.CommandContext(ctx, c.commandPath, "stdin", "stdout", "-l", lang, "tsv")
	cmd.Stdin = bytes.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, providers.NewError(providers.KindTimeout, "tesseract", "extraction timed out", ctx.Err())
		}
		return nil, providers.NewError(providers.KindUnavailable, "tesseract",
			"command failed: "+strings.TrimSpace(stderr.String()), err)
	}

	width, height := imageDimensions(content)
	return parseTSV(stdout.String(), width, height), nil
}

// imageDimensions decodes just the header. Zero dimensions mean unknown.
func imageDimensions(content []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// parseTSV converts tesseract TSV output into an extraction. Words on the
// same line are merged into one block. Pixel boxes are normalized when the
// image dimensions are known, otherwise blocks carry text only.
func parseTSV(tsv string, imgWidth, imgHeight int) *providers.Extraction {
	type lineKey struct{ page, block, par, line int }

	var text strings.Builder
	blocks := make(map[lineKey]*providers.Block)
	var order []lineKey

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(row) == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		// level page block par line word left top width height conf text
		level, _ := strconv.Atoi(cols[0])
		if level != 5 {
			continue
		}
		word := cols[11]
		if strings.TrimSpace(word) == "" {
			continue
		}
		page, _ := strconv.Atoi(cols[1])
		blockNum, _ := strconv.Atoi(cols[2])
		par, _ := strconv.Atoi(cols[3])
		line, _ := strconv.Atoi(cols[4])
		left, _ := strconv.ParseFloat(cols[6], 64)
		top, _ := strconv.ParseFloat(cols[7], 64)
		width, _ := strconv.ParseFloat(cols[8], 64)
		height, _ := strconv.ParseFloat(cols[9], 64)
		conf, _ := strconv.ParseFloat(cols[10], 64)

		key := lineKey{page, blockNum, par, line}
		b, ok := blocks[key]
		if !ok {
			b = &providers.Block{Page: page, X: left, Y: top, Width: width, Height: height, Confidence: conf}
			blocks[key] = b
			order = append(order, key)
			b.Text = word
		} else {
			b.Text += " " + word
			right := maxFloat(b.X+b.Width, left+width)
			bottom := maxFloat(b.Y+b.Height, top+height)
			b.X = minFloat(b.X, left)
			b.Y = minFloat(b.Y, top)
			b.Width = right - b.X
			b.Height = bottom - b.Y
			b.Confidence = minFloat(b.Confidence, conf)
		}
	}

	out := &providers.Extraction{}
	for _, key := range order {
		b := blocks[key]
		if text.Len() > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(b.Text)

		nb := *b
		if imgWidth > 0 && imgHeight > 0 {
			nb.X /= float64(imgWidth)
			nb.Y /= float64(imgHeight)
			nb.Width /= float64(imgWidth)
			nb.Height /= float64(imgHeight)
			nb.Confidence = b.Confidence / 100
			out.Blocks = append(out.Blocks, nb)
		}
	}
	out.Text = text.String()
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
