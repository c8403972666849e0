package mimetypes

import "mime"

type MIME string

const (
	Unknown        MIME = "unknown"
	ApplicationPDF MIME = "application/pdf"
	ImagePNG       MIME = "image/png"
	ImageJPEG      MIME = "image/jpeg"
)

// Uploadable lists the types a message attachment may have.
var Uploadable = []MIME{ImageJPEG, ImagePNG, ApplicationPDF}

// Matches compares a detected media type, parameters ignored, with the expected one.
func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// IsUploadable returns the uploadable type matching the detected one.
func IsUploadable(detected string) (MIME, bool) {
	for _, candidate := range Uploadable {
		if m, ok := Matches(detected, candidate); ok {
			return m, true
		}
	}
	return Unknown, false
}
