// internal/types/interfaces.go
package types

import "context"

// LeaveBackend is the OA system the leave skills talk to.
type LeaveBackend interface {
	Employees(ctx context.Context) ([]Employee, error)
	QueryLeaveBalance(ctx context.Context, employeeID string, leaveType *BalanceType) (*LeaveBalanceResponse, error)
	SubmitLeaveRequest(ctx context.Context, req *LeaveRequest) (*LeaveResponse, error)
}

// RequestLog persists accepted leave requests per employee.
type RequestLog interface {
	Append(ctx context.Context, record *LeaveRecord) error
	Tail(ctx context.Context, employeeID string, limit int) ([]*LeaveRecord, error)
}

// ReminderStore keeps reminders in creation order.
type ReminderStore interface {
	Add(ctx context.Context, reminder *Reminder) error
	List(ctx context.Context) ([]*Reminder, error)
}
