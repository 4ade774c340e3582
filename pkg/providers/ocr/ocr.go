// Package ocr implements the OCR client contract for the supported text
// extraction backends: Azure Computer Vision Read, AWS Textract, Google
// Cloud Vision, a local tesseract binary, and a no-op client for
// deployments without OCR. All clients return extracted text plus
// positioned blocks with page-relative coordinates in 0..1, which the
// evidence annotator turns into highlight boxes.
package ocr
