package models

import "time"

type Shift string

const (
	ShiftAM Shift = "AM"
	ShiftPM Shift = "PM"
)

// DutySchedule assigns a dispatcher and a receiver to one shift of one day.
// Only the calendar part of Date is meaningful.
type DutySchedule struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Date         time.Time `json:"date" gorm:"type:date;index:idx_duty_date_shift"`
	Shift        Shift     `json:"shift" gorm:"type:varchar(2);index:idx_duty_date_shift"`
	DispatcherID *string   `json:"dispatcher_id,omitempty"`
	ReceiverID   *string   `json:"receiver_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Staffed reports whether at least one participant is assigned.
func (d DutySchedule) Staffed() bool {
	return (d.DispatcherID != nil && *d.DispatcherID != "") || (d.ReceiverID != nil && *d.ReceiverID != "")
}
