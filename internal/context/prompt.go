package context

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

// DefaultPrompt is the built-in system prompt template. It uses Go
// text/template syntax with PromptData fields: .LeaveTypes, .BalanceTypes,
// .Employees
const DefaultPrompt = `你是一个智能请假助手，帮助员工查询假期余额和提交请假申请。

你可以帮助用户完成以下操作：
1. **查询假期余额**：查询{{.BalanceTypes}}的余额
2. **提交请假申请**：帮助用户填写并提交请假申请

请假类型包括：{{.LeaveTypes}}

提交请假需要以下信息：
- 姓名
- 部门
- 员工编号
- 请假类型
- 请假事由
- 请假开始时间（YYYY-MM-DD格式）
- 请假结束时间（YYYY-MM-DD格式）
- 请假天数

重要行为规范：
- 当用户提供的信息不完整时，请主动询问缺少的信息。
- 回答要简洁、专业、友好。
- 查询余额后，前端会自动展示可视化卡片，你只需用一两句话做简要总结即可（如"以上是您的假期余额概况"），不要再以列表形式重复所有数据。
- 提交请假后，前端会自动展示结果卡片，你只需做简要确认说明即可。
- 在收集请假信息时，如果已知员工编号，可以先调用查询接口获取姓名和部门，避免重复询问。
- 使用 **加粗** 来强调关键信息。
{{- if .Employees}}

模拟员工数据（可用于测试）：
{{- range .Employees}}
- {{.ID}}: {{.Name}}，{{.Department}}
{{- end}}
{{- end}}
`

// PromptData holds the values rendered into the system prompt.
type PromptData struct {
	LeaveTypes   string
	BalanceTypes string
	Employees    []types.Employee
}

var promptTemplate = template.Must(template.New("system").Parse(DefaultPrompt))

// RenderSystemPrompt renders DefaultPrompt for the given roster.
func RenderSystemPrompt(employees []types.Employee) (string, error) {
	leave := make([]string, len(types.LeaveTypes))
	for i, t := range types.LeaveTypes {
		leave[i] = string(t)
	}
	balance := make([]string, len(types.BalanceTypes))
	for i, t := range types.BalanceTypes {
		balance[i] = string(t)
	}

	var sb strings.Builder
	err := promptTemplate.Execute(&sb, PromptData{
		LeaveTypes:   strings.Join(leave, "、"),
		BalanceTypes: strings.Join(balance, "、"),
		Employees:    employees,
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return sb.String(), nil
}

// SessionContext renders the per-session system note for an employee id, or
// "" when the id is unknown to the caller.
func SessionContext(employeeID string) string {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return ""
	}
	return "当前用户的员工编号是: " + employeeID
}
