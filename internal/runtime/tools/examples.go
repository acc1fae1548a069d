package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

// DefaultJokeAPI is the public joke service used by get_joke.
const DefaultJokeAPI = "https://v2.jokeapi.dev/joke/"

var (
	jokeCategories = []string{"programming", "general", "knock-knock"}
	factTopics     = []string{"history", "science", "technology", "nature", "space"}

	facts = map[string]string{
		"history":    "古埃及人是最早使用牙膏的文明之一，他们的牙膏由牛蹄灰、烧焦的蛋壳和浮石粉制成。",
		"science":    "人的大脑在思考时消耗的能量相当于一个20瓦的灯泡。",
		"technology": "第一个计算机病毒是在1983年创建的，名为'Elk Cloner'，它感染了Apple II系统。",
		"nature":     "一棵成熟的橡树每年可以生产约10万颗橡子。",
		"space":      "如果你在太空中哭泣，眼泪不会流下来，而是会形成一个小球漂浮在你面前。",
	}
)

// ExampleSkills returns a registry with the demonstration skills. jokeAPI
// overrides DefaultJokeAPI when non-empty; reminders backs the reminder
// skills.
func ExampleSkills(jokeAPI string, reminders types.ReminderStore) (*runtime.Registry, error) {
	reg := runtime.NewRegistry()
	for _, s := range []runtime.Skill{
		CalculateExpression(),
		ScheduleReminder(reminders),
		ListReminders(reminders),
		GetJoke(jokeAPI),
		GetFact(),
		PlanWorkday(),
	} {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// CalculateExpression evaluates basic arithmetic.
func CalculateExpression() runtime.Skill {
	return runtime.Skill{
		Name:        "calculate_expression",
		Description: "计算数学表达式，支持加减乘除、幂运算等基本运算",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"expression": {Type: "string", Description: "数学表达式，例如：2+3*4、(10-5)/2、2**3"},
			},
			Required: []string{"expression"},
		},
		Run: func(_ context.Context, args runtime.Args) (any, error) {
			expr := args.String("expression")
			v, err := evalExpression(expr)
			if err != nil {
				return nil, err
			}
			kind := "float"
			if v == math.Trunc(v) && !strings.ContainsAny(expr, "./") {
				kind = "int"
			}
			return map[string]any{
				"expression": expr,
				"result":     v,
				"type":       kind,
			}, nil
		},
	}
}

// GetFact returns a canned fact, for a random topic when none is given.
func GetFact() runtime.Skill {
	return runtime.Skill{
		Name:        "get_fact",
		Description: "获取有趣的事实，可以按主题筛选（历史、科学、技术、自然、太空等）",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"topic": {Type: "string", Enum: enum(factTopics), Description: "事实主题，可选"},
			},
		},
		Run: func(_ context.Context, args runtime.Args) (any, error) {
			topic := args.String("topic")
			if topic == "" {
				topic = factTopics[rand.IntN(len(factTopics))]
			}
			return map[string]any{
				"topic":     topic,
				"fact":      facts[topic],
				"source":    "知识库",
				"timestamp": time.Now().Format(time.RFC3339),
			}, nil
		},
	}
}

type jokeResponse struct {
	Error    bool            `json:"error"`
	Message  string          `json:"message"`
	Category string          `json:"category"`
	Joke     string          `json:"joke"`
	Flags    map[string]bool `json:"flags"`
	Safe     *bool           `json:"safe"`
}

// GetJoke fetches a single-line joke from a JokeAPI-compatible service.
func GetJoke(baseURL string) runtime.Skill {
	if baseURL == "" {
		baseURL = DefaultJokeAPI
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	return runtime.Skill{
		Name:        "get_joke",
		Description: "获取笑话，可以按类别筛选（编程、一般、敲门笑话等）",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"category": {Type: "string", Enum: enum(jokeCategories), Description: "笑话类别，可选"},
			},
		},
		Run: func(ctx context.Context, args runtime.Args) (any, error) {
			category := args.String("category")
			if category == "" {
				category = "Any"
			}
			url := baseURL + category + "?type=single"

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				var timeout interface{ Timeout() bool }
				if errors.As(err, &timeout) && timeout.Timeout() {
					return nil, fmt.Errorf("请求超时: 笑话API响应超时")
				}
				return nil, fmt.Errorf("fetch joke: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("API请求失败: status %d", resp.StatusCode)
			}

			var data jokeResponse
			if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&data); err != nil {
				return nil, fmt.Errorf("decode joke: %w", err)
			}
			if data.Error {
				msg := data.Message
				if msg == "" {
					msg = "未知错误"
				}
				return nil, fmt.Errorf("API返回错误: %s", msg)
			}

			out := map[string]any{
				"category": "unknown",
				"joke":     "No joke found",
				"flags":    data.Flags,
				"safe":     true,
			}
			if data.Category != "" {
				out["category"] = data.Category
			}
			if data.Joke != "" {
				out["joke"] = data.Joke
			}
			if data.Flags == nil {
				out["flags"] = map[string]bool{}
			}
			if data.Safe != nil {
				out["safe"] = *data.Safe
			}
			return out, nil
		},
	}
}

type workdaySlot struct {
	TaskNumber      any     `json:"task_number"`
	Task            string  `json:"task"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes float64 `json:"duration_minutes"`
}

type workdayPlan struct {
	TotalTasks          int           `json:"total_tasks"`
	WorkHours           int           `json:"work_hours"`
	BreakTimeMinutes    int           `json:"break_time_minutes"`
	TaskDurationMinutes float64       `json:"task_duration_minutes"`
	Schedule            []workdaySlot `json:"schedule"`
}

// PlanWorkday splits the working day evenly across tasks starting at 09:00,
// with one break in the middle.
func PlanWorkday() runtime.Skill {
	return runtime.Skill{
		Name:        "plan_workday",
		Description: "规划工作日安排，根据任务列表和工作时间智能分配时间",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tasks": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "任务列表，每个元素是一个任务描述",
				},
				"work_hours": {Type: "integer", Description: "工作时间（小时），默认：8"},
				"break_time": {Type: "integer", Description: "休息时间（分钟），默认：60"},
			},
			Required: []string{"tasks"},
		},
		Run: func(_ context.Context, args runtime.Args) (any, error) {
			var in struct {
				Tasks     []string `json:"tasks"`
				WorkHours *int     `json:"work_hours"`
				BreakTime *int     `json:"break_time"`
			}
			if err := args.Decode(&in); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			workHours, breakTime := 8, 60
			if in.WorkHours != nil {
				workHours = *in.WorkHours
			}
			if in.BreakTime != nil {
				breakTime = *in.BreakTime
			}
			return planWorkday(in.Tasks, workHours, breakTime)
		},
	}
}

func planWorkday(tasks []string, workHours, breakTime int) (any, error) {
	if len(tasks) == 0 {
		return nil, errors.New("任务列表不能为空")
	}
	if workHours <= 0 || workHours > 24 {
		return nil, errors.New("无效的工作时间: 工作时间应在1-24小时之间")
	}
	if breakTime < 0 || breakTime >= workHours*60 {
		return nil, errors.New("无效的休息时间")
	}

	n := len(tasks)
	duration := float64(workHours*60-breakTime) / float64(n)
	start := time.Date(2000, 1, 1, 9, 0, 0, 0, time.UTC)
	at := func(minutes float64) time.Time {
		return start.Add(time.Duration(minutes * float64(time.Minute)))
	}

	schedule := make([]workdaySlot, 0, n+1)
	for i, task := range tasks {
		begin := at(float64(i) * duration)
		schedule = append(schedule, workdaySlot{
			TaskNumber:      i + 1,
			Task:            task,
			StartTime:       begin.Format("15:04"),
			EndTime:         begin.Add(time.Duration(duration * float64(time.Minute))).Format("15:04"),
			DurationMinutes: duration,
		})
	}
	breakStart := at(float64(n) * duration / 2)
	schedule = append(schedule, workdaySlot{
		TaskNumber:      "休息",
		Task:            "休息时间",
		StartTime:       breakStart.Format("15:04"),
		EndTime:         breakStart.Add(time.Duration(breakTime) * time.Minute).Format("15:04"),
		DurationMinutes: float64(breakTime),
	})

	return map[string]any{
		"workday_plan": workdayPlan{
			TotalTasks:          n,
			WorkHours:           workHours,
			BreakTimeMinutes:    breakTime,
			TaskDurationMinutes: duration,
			Schedule:            schedule,
		},
		"recommendations": []string{
			"按照时间表执行任务",
			"保持专注，避免分心",
			"休息时间充分放松",
		},
	}, nil
}
