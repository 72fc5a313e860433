package model

import "time"

// Workday status values.
const (
	StatusDraft    = "DRAFT"
	StatusReady    = "READY"
	StatusReleased = "RELEASED"
)

// Validation issue severities.
const (
	SeverityOK    = "OK"
	SeverityWarn  = "WARN"
	SeverityError = "ERROR"
)

type Workday struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	Date       string    `json:"date"` // YYYY-MM-DD
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DailyReport is the Tagesbericht: one per workday. Times are HH:MM strings,
// nil means the field was never filled. Extra holds dynamically configured
// fields keyed by the layout config.
type DailyReport struct {
	ID                 string         `json:"id"`
	SourceSubmissionID *string        `json:"sourceSubmissionId"`
	StartTime          *string        `json:"startTime"`
	EndTime            *string        `json:"endTime"`
	BreakMinutes       *int           `json:"breakMinutes"`
	TravelMinutes      *int           `json:"travelMinutes"`
	LicensePlate       *string        `json:"licensePlate"`
	Department         *string        `json:"department"`
	Overnight          *bool          `json:"overnight"`
	KmStart            *int           `json:"kmStart"`
	KmEnd              *int           `json:"kmEnd"`
	Comment            *string        `json:"comment"`
	Extra              map[string]any `json:"extra"`
	Version            int            `json:"version"`
}

// Position is a billable line item on a Regieschein.
type Position struct {
	Code         *string  `json:"code"`
	Description  *string  `json:"description"`
	Hours        *float64 `json:"hours"`
	Quantity     *float64 `json:"quantity"`
	Unit         *string  `json:"unit"`
	PricePerUnit *float64 `json:"pricePerUnit"`
}

// ServiceRecord is the Regieschein: customer service ticket with positions.
type ServiceRecord struct {
	ID                 string     `json:"id"`
	SourceSubmissionID *string    `json:"sourceSubmissionId"`
	CustomerID         *string    `json:"customerId"`
	CustomerName       *string    `json:"customerName"`
	StartTime          *string    `json:"startTime"`
	EndTime            *string    `json:"endTime"`
	BreakMinutes       *int       `json:"breakMinutes"`
	Positions          []Position `json:"positions"`
	PdfObjectKey       *string    `json:"pdfObjectKey"`
	Version            int        `json:"version"`
}

// TripEntry is a single GPS sample in a Streetwatch trace. Read-only.
type TripEntry struct {
	Time *string  `json:"time"`
	Km   *float64 `json:"km"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// TripLog is the Streetwatch trace for a workday.
type TripLog struct {
	LicensePlate *string     `json:"licensePlate"`
	Date         string      `json:"date"`
	Entries      []TripEntry `json:"entries"`
}

type Attachment struct {
	ID                 string  `json:"id"`
	Kind               string  `json:"kind"`
	Filename           string  `json:"filename"`
	S3Key              string  `json:"s3Key"`
	Bytes              int64   `json:"bytes"`
	SourceSubmissionID *string `json:"sourceSubmissionId"`
}

// ValidationIssue is domain data, not an error: it is rendered inline on the
// day detail view. FieldRef is a dotted path like "tb.startTime" or nil for
// workday-global issues.
type ValidationIssue struct {
	ID       string         `json:"id"`
	Code     string         `json:"code"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	FieldRef *string        `json:"fieldRef"`
	Delta    map[string]any `json:"delta"`
}

// WorkdaySummary is one row in the per-employee date selection list.
type WorkdaySummary struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	Status         string `json:"status"`
	HasTb          bool   `json:"hasTb"`
	HasRs          bool   `json:"hasRs"`
	HasStreetwatch bool   `json:"hasStreetwatch"`
	ErrorCount     int    `json:"errorCount"`
	WarnCount      int    `json:"warnCount"`
}

// WorkdayDetail is the full day bundle served to the day detail view.
type WorkdayDetail struct {
	ID               string            `json:"id"`
	Date             string            `json:"date"`
	Status           string            `json:"status"`
	Employee         *Employee         `json:"employee"`
	Tb               *DailyReport      `json:"tb"`
	Rs               *ServiceRecord    `json:"rs"`
	Streetwatch      *TripLog          `json:"streetwatch"`
	Attachments      []Attachment      `json:"attachments"`
	ValidationIssues []ValidationIssue `json:"validationIssues"`
}
