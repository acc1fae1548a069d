// internal/types/models.go
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidLeaveRequest is wrapped by every LeaveRequest validation failure.
var ErrInvalidLeaveRequest = errors.New("invalid leave request")

// LeaveType is the kind of leave an employee may apply for.
type LeaveType string

const (
	LeavePersonal     LeaveType = "事假"
	LeaveSick         LeaveType = "病假"
	LeaveAnnual       LeaveType = "年假"
	LeaveCompensatory LeaveType = "调休"
	LeavePaidSick     LeaveType = "带薪病假"
)

// LeaveTypes lists every LeaveType in display order.
var LeaveTypes = []LeaveType{LeavePersonal, LeaveSick, LeaveAnnual, LeaveCompensatory, LeavePaidSick}

func (t LeaveType) Valid() bool {
	for _, v := range LeaveTypes {
		if v == t {
			return true
		}
	}
	return false
}

// BalanceType is a leave bucket that carries a balance.
type BalanceType string

const (
	BalanceAnnual       BalanceType = "年假"
	BalanceCompensatory BalanceType = "调休"
	BalancePaidSick     BalanceType = "带薪病假"
	BalanceWelfare2022  BalanceType = "2022福利年假"
	BalanceWelfare2023  BalanceType = "2023福利年假"
	BalanceParental     BalanceType = "育儿假"
)

// BalanceTypes lists every BalanceType in display order.
var BalanceTypes = []BalanceType{
	BalanceAnnual, BalanceCompensatory, BalancePaidSick,
	BalanceWelfare2022, BalanceWelfare2023, BalanceParental,
}

func (t BalanceType) Valid() bool {
	for _, v := range BalanceTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Employee struct {
	ID         string `json:"employee_id" yaml:"id"`
	Name       string `json:"employee_name" yaml:"name"`
	Department string `json:"department" yaml:"department"`
}

type LeaveBalanceQuery struct {
	EmployeeID string       `json:"employee_id"`
	LeaveType  *BalanceType `json:"leave_type,omitempty"`
}

type LeaveBalanceItem struct {
	LeaveType     string  `json:"leave_type"`
	TotalDays     float64 `json:"total_days"`
	UsedDays      float64 `json:"used_days"`
	RemainingDays float64 `json:"remaining_days"`
}

type LeaveBalanceResponse struct {
	EmployeeID   string             `json:"employee_id"`
	EmployeeName string             `json:"employee_name"`
	Department   string             `json:"department"`
	Balances     []LeaveBalanceItem `json:"balances"`
}

type LeaveRequest struct {
	EmployeeName string    `json:"employee_name"`
	Department   string    `json:"department"`
	EmployeeID   string    `json:"employee_id"`
	LeaveType    LeaveType `json:"leave_type"`
	Reason       string    `json:"reason"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	Days         float64   `json:"days"`
}

const dateLayout = "2006-01-02"

// Validate checks required fields, the leave type, the day count and the
// date range. Errors wrap ErrInvalidLeaveRequest.
func (r *LeaveRequest) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"employee_name", r.EmployeeName},
		{"department", r.Department},
		{"employee_id", r.EmployeeID},
		{"leave_type", string(r.LeaveType)},
		{"reason", r.Reason},
		{"start_date", r.StartDate},
		{"end_date", r.EndDate},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidLeaveRequest, strings.Join(missing, ", "))
	}
	if !r.LeaveType.Valid() {
		return fmt.Errorf("%w: unknown leave type %q", ErrInvalidLeaveRequest, r.LeaveType)
	}
	if r.Days <= 0 {
		return fmt.Errorf("%w: days must be greater than 0", ErrInvalidLeaveRequest)
	}
	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidLeaveRequest)
	}
	end, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrInvalidLeaveRequest)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date %s is before start_date %s", ErrInvalidLeaveRequest, r.EndDate, r.StartDate)
	}
	return nil
}

type LeaveResponse struct {
	Success   bool           `json:"success"`
	RequestID LeaveRequestID `json:"request_id,omitempty"`
	Message   string         `json:"message"`
}

// LeaveRecord is an accepted leave request as kept in the request log.
type LeaveRecord struct {
	Seq       int64          `json:"seq"`
	RequestID LeaveRequestID `json:"request_id"`
	At        time.Time      `json:"at"`
	Request   LeaveRequest   `json:"request"`
}

// ReminderPriority ranks a reminder.
type ReminderPriority string

const (
	PriorityLow    ReminderPriority = "low"
	PriorityMedium ReminderPriority = "medium"
	PriorityHigh   ReminderPriority = "high"
	PriorityUrgent ReminderPriority = "urgent"
)

// ReminderPriorities lists every priority, lowest first.
var ReminderPriorities = []ReminderPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ReminderStatus is the progress of a reminder.
type ReminderStatus string

const (
	StatusPending    ReminderStatus = "pending"
	StatusInProgress ReminderStatus = "in_progress"
	StatusCompleted  ReminderStatus = "completed"
	StatusCancelled  ReminderStatus = "cancelled"
)

// ReminderStatuses lists every status.
var ReminderStatuses = []ReminderStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// Valid reports whether s is a known status.
func (s ReminderStatus) Valid() bool {
	for _, known := range ReminderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Reminder is a task with a due date, created by the schedule_reminder skill.
type Reminder struct {
	ID        string           `json:"task_id"`
	Task      string           `json:"task"`
	DueDate   string           `json:"due_date"`
	DueTime   string           `json:"due_time"`
	Priority  ReminderPriority `json:"priority"`
	CreatedAt time.Time        `json:"created_at"`
	Status    ReminderStatus   `json:"status"`
}

// ChatMessage is one prior turn supplied by the client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a streamed chat call.
type ChatRequest struct {
	Message    string        `json:"message"`
	EmployeeID string        `json:"employee_id,omitempty"`
	History    []ChatMessage `json:"history"`
}
