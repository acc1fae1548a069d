package tools

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/state"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

const (
	defaultDueTime = "23:59"
	// idAttempts bounds retries when a random reminder id is already taken.
	idAttempts = 5
)

// ScheduleReminder stores a reminder with a due date and priority.
func ScheduleReminder(store types.ReminderStore) runtime.Skill {
	return scheduleReminder(store, randomTaskID, time.Now)
}

func randomTaskID() string {
	return fmt.Sprintf("TASK-%d", 1000+rand.IntN(9000))
}

func scheduleReminder(store types.ReminderStore, newID func() string, now func() time.Time) runtime.Skill {
	return runtime.Skill{
		Name:        "schedule_reminder",
		Description: "安排提醒任务，可以设置任务内容、截止日期、时间和优先级",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"task":     {Type: "string", Description: "任务内容描述"},
				"due_date": {Type: "string", Description: "截止日期，格式：YYYY-MM-DD"},
				"due_time": {Type: "string", Description: "截止时间，格式：HH:MM，24小时制，可选"},
				"priority": {Type: "string", Enum: enum(types.ReminderPriorities), Description: "任务优先级，默认：medium"},
			},
			Required: []string{"task", "due_date"},
		},
		Run: func(ctx context.Context, args runtime.Args) (any, error) {
			r := &types.Reminder{
				Task:      args.String("task"),
				DueDate:   args.String("due_date"),
				DueTime:   args.String("due_time"),
				Priority:  types.ReminderPriority(args.String("priority")),
				CreatedAt: now(),
				Status:    types.StatusPending,
			}
			if r.DueTime == "" {
				r.DueTime = defaultDueTime
			}
			if r.Priority == "" {
				r.Priority = types.PriorityMedium
			}
			if _, err := time.Parse("2006-01-02", r.DueDate); err != nil {
				return nil, fmt.Errorf("截止日期格式无效: %q", r.DueDate)
			}
			if _, err := time.Parse("15:04", r.DueTime); err != nil {
				return nil, fmt.Errorf("截止时间格式无效: %q", r.DueTime)
			}

			var err error
			for range idAttempts {
				r.ID = newID()
				if err = store.Add(ctx, r); !errors.Is(err, state.ErrReminderExists) {
					break
				}
			}
			if err != nil {
				return nil, fmt.Errorf("save reminder: %w", err)
			}

			return map[string]any{
				"success":     true,
				"message":     "提醒任务已创建：" + r.Task,
				"task_id":     r.ID,
				"reminder":    r,
				"next_action": fmt.Sprintf("请在%s %s前完成", r.DueDate, r.DueTime),
			}, nil
		},
	}
}

// ListReminders lists stored reminders, optionally filtered by status and
// priority.
func ListReminders(store types.ReminderStore) runtime.Skill {
	return runtime.Skill{
		Name:        "list_reminders",
		Description: "列出提醒任务，可以根据状态和优先级筛选",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"status":   {Type: "string", Enum: enum(types.ReminderStatuses), Description: "任务状态筛选，可选"},
				"priority": {Type: "string", Enum: enum(types.ReminderPriorities), Description: "任务优先级筛选，可选"},
			},
		},
		Run: func(ctx context.Context, args runtime.Args) (any, error) {
			status := types.ReminderStatus(args.String("status"))
			priority := types.ReminderPriority(args.String("priority"))

			all, err := store.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("load reminders: %w", err)
			}
			matched := make([]*types.Reminder, 0, len(all))
			for _, r := range all {
				if status != "" && r.Status != status {
					continue
				}
				if priority != "" && r.Priority != priority {
					continue
				}
				matched = append(matched, r)
			}

			return map[string]any{
				"count": len(matched),
				"filters": map[string]any{
					"status":   nullable(string(status)),
					"priority": nullable(string(priority)),
				},
				"reminders": matched,
			}, nil
		},
	}
}

// nullable maps an unset filter to JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
