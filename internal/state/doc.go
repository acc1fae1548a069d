// Package state provides filesystem-backed storage implementations.
package state

import "github.com/jayceecory-tech/ai-qingjia/internal/types"

var (
	_ types.RequestLog    = (*RequestStore)(nil)
	_ types.ReminderStore = (*ReminderStore)(nil)
)
