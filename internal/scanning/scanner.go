package scanning

// Scanner transcribes the text of a photographed receipt. The heuristics in
// ParseReceiptText turn that text into structured fields, so implementations
// must return the receipt's text as printed, not a summary of it.
type Scanner interface {
	// ExtractText transcribes all readable text from a receipt image or PDF
	ExtractText(imageData []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// transcribePrompt is the shared prompt used by all vision providers for
// transcribing receipts
const transcribePrompt = `You are reading a photographed receipt or invoice. Transcribe every line of text you can read in the image, from top to bottom, one receipt line per output line.

Important:
- Keep the original language and script (Latin, Hebrew or otherwise)
- Keep currency symbols, amounts, dates and punctuation exactly as printed
- Do not translate, summarize, annotate or reorder anything
- Do not use markdown code blocks
- Return only the transcribed text`
