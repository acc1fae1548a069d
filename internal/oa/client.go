// Package oa is the OA system client. Until a real OA endpoint is wired in,
// it answers from an embedded roster.
package oa

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

//go:embed roster.yaml
var defaultRoster []byte

const unknown = "未知"

type balance struct {
	Type  types.BalanceType `yaml:"type"`
	Total float64           `yaml:"total"`
	Used  float64           `yaml:"used"`
}

type employeeRecord struct {
	types.Employee `yaml:",inline"`
	Balances       []balance `yaml:"balances"`
}

type roster struct {
	Employees []employeeRecord `yaml:"employees"`
}

// Client answers leave queries. BaseURL and APIKey are kept for the real OA
// integration and are not used by the stub.
type Client struct {
	BaseURL string
	APIKey  string

	mu        sync.Mutex
	employees []employeeRecord
	index     map[string]int
	newID     func() types.LeaveRequestID
	submitted []*types.LeaveRecord
	log       types.RequestLog
}

// New creates a client backed by the embedded roster.
func New(baseURL, apiKey string) (*Client, error) {
	return NewFromYAML(baseURL, apiKey, defaultRoster)
}

// NewFromYAML creates a client backed by the given roster document.
func NewFromYAML(baseURL, apiKey string, data []byte) (*Client, error) {
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	c := &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		employees: r.Employees,
		index:     make(map[string]int, len(r.Employees)),
		newID:     types.NewLeaveRequestID,
	}
	for i, e := range r.Employees {
		if e.ID == "" {
			return nil, fmt.Errorf("parse roster: employee %d has no id", i)
		}
		if _, dup := c.index[e.ID]; dup {
			return nil, fmt.Errorf("parse roster: duplicate employee %s", e.ID)
		}
		for _, b := range e.Balances {
			if !b.Type.Valid() {
				return nil, fmt.Errorf("parse roster: employee %s has unknown balance type %q", e.ID, b.Type)
			}
		}
		c.index[e.ID] = i
	}
	return c, nil
}

// UseRequestLog makes accepted requests persist to log.
func (c *Client) UseRequestLog(log types.RequestLog) {
	c.log = log
}

// Employees returns the roster in document order.
func (c *Client) Employees(ctx context.Context) ([]types.Employee, error) {
	out := make([]types.Employee, len(c.employees))
	for i, e := range c.employees {
		out[i] = e.Employee
	}
	return out, nil
}

// QueryLeaveBalance returns the balances of one employee, optionally filtered
// to a single type. Unknown employees yield a response named 未知 with no
// balances rather than an error.
func (c *Client) QueryLeaveBalance(ctx context.Context, employeeID string, leaveType *types.BalanceType) (*types.LeaveBalanceResponse, error) {
	i, ok := c.index[employeeID]
	if !ok {
		return &types.LeaveBalanceResponse{
			EmployeeID:   employeeID,
			EmployeeName: unknown,
			Department:   unknown,
			Balances:     []types.LeaveBalanceItem{},
		}, nil
	}
	if leaveType != nil && !leaveType.Valid() {
		return nil, fmt.Errorf("unknown balance type %q", *leaveType)
	}

	emp := c.employees[i]
	balances := make([]types.LeaveBalanceItem, 0, len(emp.Balances))
	for _, b := range emp.Balances {
		if leaveType != nil && b.Type != *leaveType {
			continue
		}
		balances = append(balances, types.LeaveBalanceItem{
			LeaveType:     string(b.Type),
			TotalDays:     b.Total,
			UsedDays:      b.Used,
			RemainingDays: b.Total - b.Used,
		})
	}

	return &types.LeaveBalanceResponse{
		EmployeeID:   employeeID,
		EmployeeName: emp.Name,
		Department:   emp.Department,
		Balances:     balances,
	}, nil
}

// SubmitLeaveRequest validates and records a leave request.
func (c *Client) SubmitLeaveRequest(ctx context.Context, req *types.LeaveRequest) (*types.LeaveResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := c.index[req.EmployeeID]; !ok {
		return &types.LeaveResponse{
			Success: false,
			Message: fmt.Sprintf("未找到员工编号 %s 的信息", req.EmployeeID),
		}, nil
	}

	id := c.newID()
	rec := &types.LeaveRecord{
		RequestID: id,
		At:        time.Now(),
		Request:   *req,
	}
	if c.log != nil {
		if err := c.log.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("record leave request: %w", err)
		}
	} else {
		c.remember(rec)
	}

	slog.Info("leave request submitted",
		"request_id", id,
		"employee_id", req.EmployeeID,
		"leave_type", req.LeaveType,
		"days", req.Days,
	)

	return &types.LeaveResponse{
		Success:   true,
		RequestID: id,
		Message:   fmt.Sprintf("请假申请已提交成功，申请单号: %s，等待审批。", id),
	}, nil
}

// History returns the employee's most recent accepted requests, oldest
// first. Without a request log it answers from the requests accepted in this
// process. A limit of zero or less returns them all.
func (c *Client) History(ctx context.Context, employeeID string, limit int) ([]*types.LeaveRecord, error) {
	if c.log != nil {
		return c.log.Tail(ctx, employeeID, limit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.LeaveRecord
	for _, rec := range c.submitted {
		if rec.Request.EmployeeID == employeeID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// remember keeps rec in memory, numbered per employee like the request log.
func (c *Client) remember(rec *types.LeaveRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, r := range c.submitted {
		if r.Request.EmployeeID == rec.Request.EmployeeID {
			n++
		}
	}
	rec.Seq = n + 1
	c.submitted = append(c.submitted, rec)
}
