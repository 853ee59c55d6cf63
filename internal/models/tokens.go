package models

import "time"

type MaydayKind string

const (
	MaydayShift  MaydayKind = "shift"
	MaydayCancel MaydayKind = "cancel"
)

// MaydayToken is issued for every customer notified by a MAYDAY action.
type MaydayToken struct {
	ID          string
	EventID     string
	Kind        MaydayKind
	Confirmed   bool
	ConfirmedAt *time.Time
	Applied     bool
	AppliedAt   *time.Time
	CreatedAt   time.Time
}

// RebookToken lets a customer of a cancelled event rebook on their own.
type RebookToken struct {
	ID        string
	EventID   string
	Used      bool
	UsedAt    *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}

type WorkRequestStatus string

const (
	RequestPending   WorkRequestStatus = "pending"
	RequestApproved  WorkRequestStatus = "approved"
	RequestRejected  WorkRequestStatus = "rejected"
	RequestWithdrawn WorkRequestStatus = "withdrawn"
)

// WorkRequest is a staffing request; approved requests produce an
// fi_assignment event and keep a reference to it.
type WorkRequest struct {
	ID        string
	Status    WorkRequestStatus
	EventID   *string
	UpdatedAt time.Time
}

type EmailType string

const (
	EmailBookingConfirmation EmailType = "booking_confirmation"
	EmailBookingCancelled    EmailType = "booking_cancelled"
	EmailMaydayShift         EmailType = "mayday_shift"
	EmailMaydayCancel        EmailType = "mayday_cancel"
)

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailQueueItem is one row of the notification outbox.
type EmailQueueItem struct {
	ID        string
	Type      EmailType
	Recipient string
	Subject   string
	Content   string
	Status    EmailStatus
	EventID   *string
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

// DisplayStatus is the read-side projection of an event and its tokens.
type DisplayStatus string

const (
	DisplayNone                DisplayStatus = ""
	DisplayShiftPending        DisplayStatus = "shift_pending"
	DisplayShiftConfirmed      DisplayStatus = "shift_confirmed"
	DisplayRebooked            DisplayStatus = "rebooked"
	DisplayAwaitingRebooking   DisplayStatus = "awaiting_rebooking"
	DisplayCancellationPending DisplayStatus = "cancellation_pending"
)

// CancellationReason is the MAYDAY reason enum.
type CancellationReason string

const (
	ReasonTechnicalIssue CancellationReason = "technical_issue"
	ReasonStaffIllness   CancellationReason = "staff_illness"
	ReasonOther          CancellationReason = "other"
)

// ReasonText resolves the customer-facing reason sentence.
func ReasonText(r CancellationReason, note string) string {
	switch r {
	case ReasonTechnicalIssue:
		return "due to a technical issue"
	case ReasonStaffIllness:
		return "because a member of our staff is ill"
	default:
		if note != "" {
			return note
		}
		return "due to unforeseen circumstances"
	}
}
