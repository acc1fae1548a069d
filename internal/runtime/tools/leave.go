package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

const datePattern = `^\d{4}-\d{2}-\d{2}$`

// LeaveSkills returns a registry with the leave skills backed by backend.
func LeaveSkills(backend types.LeaveBackend) (*runtime.Registry, error) {
	reg := runtime.NewRegistry()
	for _, s := range []runtime.Skill{
		QueryLeaveBalance(backend),
		SubmitLeaveRequest(backend),
	} {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// QueryLeaveBalance looks up an employee's leave balances, optionally for a
// single balance type. Unknown employees yield an empty result, not an error.
func QueryLeaveBalance(backend types.LeaveBackend) runtime.Skill {
	return runtime.Skill{
		Name:        "query_leave_balance",
		Description: "查询员工的假期余额信息，包括年假、调休、带薪病假、2022福利年假、2023福利年假、育儿假等各类假期的总天数、已使用天数和剩余天数",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"employee_id": {Type: "string", Description: "员工编号，例如 EMP001"},
				"leave_type": {
					Type:        "string",
					Enum:        enum(types.BalanceTypes),
					Description: "要查询的假期类型，不传则查询全部假期余额",
				},
			},
			Required: []string{"employee_id"},
		},
		Run: func(ctx context.Context, args runtime.Args) (any, error) {
			var leaveType *types.BalanceType
			if lt := args.String("leave_type"); lt != "" {
				bt := types.BalanceType(lt)
				leaveType = &bt
			}
			return backend.QueryLeaveBalance(ctx, args.String("employee_id"), leaveType)
		},
	}
}

// SubmitLeaveRequest files a leave request with the OA system.
func SubmitLeaveRequest(backend types.LeaveBackend) runtime.Skill {
	return runtime.Skill{
		Name:        "submit_leave_request",
		Description: "提交请假申请。需要员工姓名、部门、员工编号、请假类型、请假事由、开始日期、结束日期和请假天数",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"employee_name": {Type: "string", Description: "员工姓名"},
				"department":    {Type: "string", Description: "所属部门"},
				"employee_id":   {Type: "string", Description: "员工编号"},
				"leave_type": {
					Type:        "string",
					Enum:        enum(types.LeaveTypes),
					Description: "请假类型: 事假、病假、年假、调休、带薪病假",
				},
				"reason":     {Type: "string", Description: "请假事由"},
				"start_date": {Type: "string", Pattern: datePattern, Description: "请假开始日期，格式 YYYY-MM-DD"},
				"end_date":   {Type: "string", Pattern: datePattern, Description: "请假结束日期，格式 YYYY-MM-DD"},
				"days":       {Type: "number", ExclusiveMinimum: float(0), Description: "请假天数"},
			},
			Required: []string{
				"employee_name",
				"department",
				"employee_id",
				"leave_type",
				"reason",
				"start_date",
				"end_date",
				"days",
			},
		},
		Run: func(ctx context.Context, args runtime.Args) (any, error) {
			var req types.LeaveRequest
			if err := args.Decode(&req); err != nil {
				return nil, fmt.Errorf("decode request: %w", err)
			}
			return backend.SubmitLeaveRequest(ctx, &req)
		},
	}
}

func enum[T ~string](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func float(v float64) *float64 { return &v }
