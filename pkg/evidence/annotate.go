package evidence

import (
	"encoding/base64"
	"strings"

	"github.com/auditflow/auditflow/pkg/models"
)

// maxHighlightsPerFile bounds artifact size for noisy focus phrases.
const maxHighlightsPerFile = 20

// Annotate produces one artifact per evidence file, in input order. Focus
// phrases are matched case-insensitively against the positioned regions of
// each extraction; matches become highlights with the locator appropriate to
// the file kind.
func Annotate(files []models.EvidenceFile, extractions []FileExtraction, focusPhrases []string) []models.AnnotatedFile {
	out := make([]models.AnnotatedFile, 0, len(files))
	for i := range files {
		file := &files[i]
		artifact := models.AnnotatedFile{
			FileName:         "highlighted_" + file.FileName,
			OriginalFileName: originalName(file),
			Base64:           base64.StdEncoding.EncodeToString(file.Content),
		}
		if i < len(extractions) {
			artifact.Warning = extractions[i].Warning
			artifact.Highlights = highlight(&extractions[i], focusPhrases)
		}
		out = append(out, artifact)
	}
	return out
}

func originalName(file *models.EvidenceFile) string {
	if file.OriginalFileName != "" {
		return file.OriginalFileName
	}
	return file.FileName
}

func highlight(ext *FileExtraction, focusPhrases []string) []models.Highlight {
	var highlights []models.Highlight

	matches := func(text string) (string, bool) {
		lower := strings.ToLower(text)
		for _, phrase := range focusPhrases {
			p := strings.TrimSpace(phrase)
			if p == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(p)) {
				return p, true
			}
		}
		return "", false
	}

	for _, block := range ext.Blocks {
		if len(highlights) >= maxHighlightsPerFile {
			return highlights
		}
		if matched, ok := matches(block.Text); ok {
			highlights = append(highlights, models.Highlight{
				Page:        block.Page,
				X:           block.X,
				Y:           block.Y,
				Width:       block.Width,
				Height:      block.Height,
				MatchedText: matched,
			})
		}
	}
	for _, cell := range ext.Cells {
		if len(highlights) >= maxHighlightsPerFile {
			return highlights
		}
		if matched, ok := matches(cell.Text); ok {
			highlights = append(highlights, models.Highlight{
				Sheet:       cell.Sheet,
				Cell:        cell.Ref,
				MatchedText: matched,
			})
		}
	}
	for idx, para := range ext.Paragraphs {
		if len(highlights) >= maxHighlightsPerFile {
			return highlights
		}
		if matched, ok := matches(para); ok {
			highlights = append(highlights, models.Highlight{
				Paragraph:   idx + 1,
				MatchedText: matched,
			})
		}
	}
	return highlights
}
