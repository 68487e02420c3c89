package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	id "ncc/pkg/domain"
)

func TestResolveDocuments(t *testing.T) {
	tests := []struct {
		name          string
		profile       *Profile
		reg           *Registration
		wantStudent   DocumentRef
		wantPayment   DocumentRef
		wantDivergent []DocumentKind
	}{
		{
			name:        "nothing anywhere",
			profile:     &Profile{},
			reg:         nil,
			wantStudent: DocumentRef{},
			wantPayment: DocumentRef{},
		},
		{
			name:        "present on registration only",
			profile:     &Profile{},
			reg:         &Registration{StudentIDFileID: "r-s"},
			wantStudent: DocumentRef{FileID: "r-s", Source: SourceRegistration},
		},
		{
			name:        "present on profile only",
			profile:     &Profile{PaymentScreenshotFileID: "p-p"},
			reg:         &Registration{},
			wantPayment: DocumentRef{FileID: "p-p", Source: SourceProfile},
		},
		{
			name:          "profile wins on disagreement",
			profile:       &Profile{StudentIDFileID: "p-s", PaymentScreenshotFileID: "same"},
			reg:           &Registration{StudentIDFileID: "r-s", PaymentScreenshotFileID: "same"},
			wantStudent:   DocumentRef{FileID: "p-s", Source: SourceProfile},
			wantPayment:   DocumentRef{FileID: "same", Source: SourceProfile},
			wantDivergent: []DocumentKind{DocumentStudentID},
		},
		{
			name:        "nil profile falls back to registration",
			profile:     nil,
			reg:         &Registration{StudentIDFileID: "r-s", PaymentScreenshotFileID: "r-p"},
			wantStudent: DocumentRef{FileID: "r-s", Source: SourceRegistration},
			wantPayment: DocumentRef{FileID: "r-p", Source: SourceRegistration},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDocuments(tt.profile, tt.reg)
			assert.Equal(t, tt.wantStudent, got.StudentID)
			assert.Equal(t, tt.wantPayment, got.PaymentScreenshot)
			assert.Equal(t, tt.wantDivergent, got.Divergent)
		})
	}
}

func TestWizardSession_Overlay(t *testing.T) {
	persisted := ResolveDocuments(&Profile{StudentIDFileID: "p-s"}, nil)
	s := NewWizardSession(id.UserID("u"))
	s.RecordDocument(DocumentPaymentScreenshot, SessionDocument{FileID: "s-p", LocalName: "receipt.png"})

	got := s.Overlay(persisted)
	assert.Equal(t, DocumentRef{FileID: "p-s", Source: SourceProfile}, got.StudentID)
	assert.Equal(t, DocumentRef{FileID: "s-p", Source: SourceSession}, got.PaymentScreenshot)
	assert.True(t, got.Complete())

	var nilSession *WizardSession
	assert.Equal(t, persisted, nilSession.Overlay(persisted))
}

func TestCurrentStep(t *testing.T) {
	complete := ResolvedDocuments{StudentID: DocumentRef{FileID: "a"}, PaymentScreenshot: DocumentRef{FileID: "b"}}
	assert.Equal(t, StepPersonalInfo, CurrentStep(false, false, ResolvedDocuments{}, false))
	assert.Equal(t, StepAgreement, CurrentStep(true, false, ResolvedDocuments{}, false))
	assert.Equal(t, StepDocuments, CurrentStep(true, true, ResolvedDocuments{}, false))
	assert.Equal(t, StepConfirmation, CurrentStep(true, true, complete, false))
	assert.Equal(t, StepConfirmation, CurrentStep(false, false, ResolvedDocuments{}, true))
}

func TestFee_BSONRoundTrip(t *testing.T) {
	type holder struct {
		Fee Fee `bson:"fee"`
	}
	in := holder{Fee: NewFee(decimal.RequireFromString("150000.25"))}

	data, err := bson.Marshal(in)
	require.NoError(t, err)

	var raw bson.M
	require.NoError(t, bson.Unmarshal(data, &raw))
	assert.Equal(t, "150000.25", raw["fee"], "fee is stored as a decimal string")

	var out holder
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.True(t, in.Fee.Equal(out.Fee.Decimal))
}
