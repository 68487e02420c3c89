package models

import (
	dErrors "ncc/pkg/domain-errors"
)

// Status is the registration review state.
type Status string

const (
	StatusIncomplete          Status = "incomplete"
	StatusPendingVerification Status = "pending_verification"
	StatusPending             Status = "pending"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
)

// ParseStatus validates a registration status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusIncomplete, StatusPendingVerification, StatusPending, StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown registration status")
}

// IsDecision reports whether entering this status notifies the applicant.
func (s Status) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanStaffSet checks a staff transition from s to target. Staff choose
// between pending, approved and rejected once an application was submitted.
func (s Status) CanStaffSet(target Status) error {
	switch target {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return dErrors.New(dErrors.CodeValidation, "staff may only set pending, approved or rejected")
	}
	if s == StatusIncomplete {
		return dErrors.New(dErrors.CodeInvalidState, "registration has not been submitted")
	}
	return nil
}

// PaymentStatus is the payment proof review state, independent of Status.
type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentVerificationPending PaymentStatus = "verification_pending"
	PaymentApproved            PaymentStatus = "approved"
	PaymentRejected            PaymentStatus = "rejected"
)

// ParsePaymentStatus validates a payment status.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentVerificationPending, PaymentApproved, PaymentRejected:
		return PaymentStatus(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown payment status")
}

// IsDecision reports whether entering this payment status notifies the applicant.
func (p PaymentStatus) IsDecision() bool {
	return p == PaymentApproved || p == PaymentRejected
}

// CanStaffSetPayment checks a staff payment transition. Staff may move
// payment from any state, but nothing returns to pending.
func CanStaffSetPayment(target PaymentStatus) error {
	switch target {
	case PaymentVerificationPending, PaymentApproved, PaymentRejected:
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "staff may only set verification_pending, approved or rejected")
}
