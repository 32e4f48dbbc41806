package ingest

import (
	"fmt"
	"mime"
	"strings"
)

// DocType is the media family a pipeline is built for.
type DocType string

const (
	DocTypeText  DocType = "text"
	DocTypeImage DocType = "image"
	DocTypeAudio DocType = "audio"
	DocTypeVideo DocType = "video"
)

// DocTypes lists every supported media family.
func DocTypes() []DocType {
	return []DocType{DocTypeText, DocTypeImage, DocTypeAudio, DocTypeVideo}
}

var textApplicationTypes = map[string]struct{}{
	"application/json": {},
	"application/pdf":  {},
	"application/xml":  {},
}

// UnsupportedDocTypeError is returned for MIME types no pipeline handles.
type UnsupportedDocTypeError struct {
	MIMEType string
}

func (e *UnsupportedDocTypeError) Error() string {
	return fmt.Sprintf("unsupported document type for mime type %q", e.MIMEType)
}

// ErrorKind marks the failure as a client error.
func (e *UnsupportedDocTypeError) ErrorKind() string { return "validation" }

// DocTypeForMIME maps a MIME type (parameters allowed) to a DocType.
func DocTypeForMIME(mimeType string) (DocType, error) {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(base); err == nil {
		base = parsed
	}
	major, _, _ := strings.Cut(base, "/")
	switch major {
	case "text":
		return DocTypeText, nil
	case "image":
		return DocTypeImage, nil
	case "audio":
		return DocTypeAudio, nil
	case "video":
		return DocTypeVideo, nil
	}
	if _, ok := textApplicationTypes[base]; ok {
		return DocTypeText, nil
	}
	return "", &UnsupportedDocTypeError{MIMEType: mimeType}
}
