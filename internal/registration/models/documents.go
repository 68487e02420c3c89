package models

import (
	dErrors "ncc/pkg/domain-errors"
)

// DocumentKind names one of the two uploaded documents.
type DocumentKind string

const (
	DocumentStudentID         DocumentKind = "studentId"
	DocumentPaymentScreenshot DocumentKind = "paymentScreenshot"
)

// DocumentKinds lists every kind in display order.
var DocumentKinds = []DocumentKind{DocumentStudentID, DocumentPaymentScreenshot}

// ParseDocumentKind validates a document kind from a route or form.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch DocumentKind(s) {
	case DocumentStudentID, DocumentPaymentScreenshot:
		return DocumentKind(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown document kind")
}

// FileField is the bson field holding this kind's file id on both profile and registration.
func (k DocumentKind) FileField() string {
	if k == DocumentPaymentScreenshot {
		return FieldPaymentScreenshotFileID
	}
	return FieldStudentIDFileID
}

// AllowedTypes lists the sniffed MIME types accepted for this kind.
func (k DocumentKind) AllowedTypes() []string {
	if k == DocumentPaymentScreenshot {
		return []string{"image/jpeg", "image/png"}
	}
	return []string{"image/jpeg", "image/png", "application/pdf"}
}

// AllowedLabel is the user-visible list of accepted formats.
func (k DocumentKind) AllowedLabel() string {
	if k == DocumentPaymentScreenshot {
		return "JPEG or PNG"
	}
	return "JPEG, PNG or PDF"
}

// DocumentSource says where a resolved file reference came from.
type DocumentSource string

const (
	SourceNone         DocumentSource = ""
	SourceSession      DocumentSource = "session"
	SourceProfile      DocumentSource = "profile"
	SourceRegistration DocumentSource = "registration"
)

// DocumentRef is a resolved file reference.
type DocumentRef struct {
	FileID string         `json:"fileId,omitempty"`
	Source DocumentSource `json:"source,omitempty"`
}

// Present reports whether a file is referenced.
func (r DocumentRef) Present() bool {
	return r.FileID != ""
}

// ResolvedDocuments is the merged view of file references across the
// profile and registration documents.
type ResolvedDocuments struct {
	StudentID         DocumentRef    `json:"studentId"`
	PaymentScreenshot DocumentRef    `json:"paymentScreenshot"`
	Divergent         []DocumentKind `json:"divergent,omitempty"`
}

// Get returns the reference for kind.
func (d ResolvedDocuments) Get(kind DocumentKind) DocumentRef {
	if kind == DocumentPaymentScreenshot {
		return d.PaymentScreenshot
	}
	return d.StudentID
}

func (d *ResolvedDocuments) set(kind DocumentKind, ref DocumentRef) {
	if kind == DocumentPaymentScreenshot {
		d.PaymentScreenshot = ref
		return
	}
	d.StudentID = ref
}

// Complete reports whether both documents are present.
func (d ResolvedDocuments) Complete() bool {
	return d.StudentID.Present() && d.PaymentScreenshot.Present()
}

// ResolveDocuments merges file references. A document is present when either
// record has it; when both have different ids the profile wins and the kind
// is reported as divergent.
func ResolveDocuments(profile *Profile, reg *Registration) ResolvedDocuments {
	var out ResolvedDocuments
	for _, kind := range DocumentKinds {
		p, r := profile.FileID(kind), reg.FileID(kind)
		switch {
		case p != "":
			out.set(kind, DocumentRef{FileID: p, Source: SourceProfile})
			if r != "" && r != p {
				out.Divergent = append(out.Divergent, kind)
			}
		case r != "":
			out.set(kind, DocumentRef{FileID: r, Source: SourceRegistration})
		}
	}
	return out
}
