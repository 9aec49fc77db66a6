package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ltl/internal/domain"
)

const maxTimerDuration = 30 * 24 * time.Hour

var errSchedulerStopped = errors.New("scheduler is stopped")

// Alarm is a pending timer or reminder.
type Alarm struct {
	ID     int
	Label  string
	Due    time.Time
	Length time.Duration
	TaskID int64 // reminder task, 0 for plain timers
}

// Message is the text shown when the alarm fires.
func (a Alarm) Message() string {
	if a.TaskID != 0 {
		return "Reminder: " + a.Label
	}
	if a.Label != "" {
		return fmt.Sprintf("Time's up: %s (%s timer)", a.Label, HumanDuration(a.Length))
	}
	return fmt.Sprintf("Time's up! (%s timer)", HumanDuration(a.Length))
}

// Scheduler runs in-process one-shot alarms. Alarms do not survive a
// restart; reminders also leave a task behind in the memory store.
type Scheduler struct {
	mu      sync.Mutex
	alarms  map[int]*scheduled
	nextID  int
	notify  func(Alarm)
	stopped bool
	logger  *slog.Logger
}

type scheduled struct {
	alarm Alarm
	timer *time.Timer
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		alarms: make(map[int]*scheduled),
		logger: logger,
	}
}

// SetNotify sets the function called when an alarm fires. Without one,
// fired alarms are only logged.
func (s *Scheduler) SetNotify(fn func(Alarm)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

func (s *Scheduler) Schedule(label string, d time.Duration, taskID int64) (Alarm, error) {
	if d <= 0 {
		return Alarm{}, fmt.Errorf("duration must be positive, got %s", d)
	}
	if d > maxTimerDuration {
		return Alarm{}, fmt.Errorf("duration %s is longer than %s", HumanDuration(d), HumanDuration(maxTimerDuration))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Alarm{}, errSchedulerStopped
	}
	s.nextID++
	a := Alarm{ID: s.nextID, Label: label, Due: time.Now().Add(d), Length: d, TaskID: taskID}
	s.alarms[a.ID] = &scheduled{alarm: a, timer: time.AfterFunc(d, func() { s.fire(a.ID) })}
	s.logger.Info("alarm scheduled", "id", a.ID, "label", label, "in", d)
	return a, nil
}

func (s *Scheduler) fire(id int) {
	s.mu.Lock()
	sc, ok := s.alarms[id]
	if ok {
		delete(s.alarms, id)
	}
	notify := s.notify
	s.mu.Unlock()
	if !ok {
		return
	}

	s.logger.Info("alarm fired", "id", id, "message", sc.alarm.Message())
	if notify != nil {
		notify(sc.alarm)
	}
}

// Cancel stops a pending alarm. It reports false for unknown or fired ids.
func (s *Scheduler) Cancel(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.alarms[id]
	if !ok {
		return false
	}
	sc.timer.Stop()
	delete(s.alarms, id)
	return true
}

// Pending returns the alarms not yet fired, soonest first.
func (s *Scheduler) Pending() []Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alarm, 0, len(s.alarms))
	for _, sc := range s.alarms {
		out = append(out, sc.alarm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

// Stop cancels every pending alarm and refuses new ones. It returns the
// number of alarms dropped. Safe to call more than once.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	n := len(s.alarms)
	for id, sc := range s.alarms {
		sc.timer.Stop()
		delete(s.alarms, id)
	}
	return n
}

var durationPartRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(days?|d|hours?|hrs?|h|minutes?|mins?|m|seconds?|secs?|s)\b`)

// ParseDuration reads "90s", "1h30m", "5 minutes", "1 hour and 20 min" or a
// bare number of minutes.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Minute)), nil
	}

	matches := durationPartRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("cannot read duration %q", s)
	}
	var total time.Duration
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("cannot read duration %q", s)
		}
		var unit time.Duration
		switch u := strings.ToLower(m[2]); {
		case strings.HasPrefix(u, "d"):
			unit = 24 * time.Hour
		case strings.HasPrefix(u, "h"):
			unit = time.Hour
		case strings.HasPrefix(u, "m"):
			unit = time.Minute
		default:
			unit = time.Second
		}
		total += time.Duration(n * float64(unit))
	}
	return total, nil
}

// HumanDuration renders d as "1 hour 5 minutes", dropping zero parts.
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		return "under a second"
	}
	var parts []string
	for _, u := range []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	} {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		name := u.name
		if n != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	return strings.Join(parts, " ")
}

// TimerTools returns set_timer, list_timers and cancel_timer, plus
// schedule_reminder when store is not nil.
func TimerTools(s *Scheduler, store domain.MemoryStore) []domain.Tool {
	tools := []domain.Tool{
		NewFunc("set_timer",
			"Start a countdown timer. The user is notified when it ends.",
			[]domain.ParamSpec{
				{Name: "duration", Type: domain.ParamString, Required: true, Description: "How long, e.g. 5m, 90s, '1 hour 30 minutes'"},
				{Name: "label", Type: domain.ParamString, Description: "Optional name, e.g. tea"},
			},
			func(_ context.Context, args map[string]any) (any, error) {
				d, err := ParseDuration(ArgString(args, "duration"))
				if err != nil {
					return nil, err
				}
				a, err := s.Schedule(ArgString(args, "label"), d, 0)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Timer #%d set for %s (ends at %s). I'll notify you when time's up.",
					a.ID, HumanDuration(d), a.Due.Format("15:04:05")), nil
			}),

		NewFunc("list_timers",
			"List running timers and reminders.",
			nil,
			func(context.Context, map[string]any) (any, error) {
				pending := s.Pending()
				if len(pending) == 0 {
					return "No timers running.", nil
				}
				var sb strings.Builder
				for i, a := range pending {
					if i > 0 {
						sb.WriteByte('\n')
					}
					label := a.Label
					if label == "" {
						label = "timer"
					}
					fmt.Fprintf(&sb, "#%d %s: %s left", a.ID, label, HumanDuration(time.Until(a.Due)))
				}
				return sb.String(), nil
			}),

		NewFunc("cancel_timer",
			"Cancel a running timer or reminder by its number.",
			[]domain.ParamSpec{
				{Name: "id", Type: domain.ParamInt, Required: true, Description: "Timer number from set_timer or list_timers"},
			},
			func(_ context.Context, args map[string]any) (any, error) {
				id := ArgInt(args, "id", 0)
				if !s.Cancel(id) {
					return nil, fmt.Errorf("no running timer #%d", id)
				}
				return fmt.Sprintf("Cancelled timer #%d.", id), nil
			}),
	}
	if store == nil {
		return tools
	}

	return append(tools, NewFunc("schedule_reminder",
		"Remind the user about something later. Also adds it to the task list.",
		[]domain.ParamSpec{
			{Name: "text", Type: domain.ParamString, Required: true, Description: "What to remind about"},
			{Name: "in", Type: domain.ParamString, Required: true, Description: "When, relative to now, e.g. 20m, '2 hours'"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			d, err := ParseDuration(ArgString(args, "in"))
			if err != nil {
				return nil, err
			}
			text := ArgString(args, "text")
			due := time.Now().Add(d)
			taskID, err := store.CreateTask(ctx, domain.Task{
				Title:       "Reminder: " + text,
				Description: "Due " + due.Format("2006-01-02 15:04"),
				Priority:    "normal",
			})
			if err != nil {
				return nil, fmt.Errorf("create reminder task: %w", err)
			}
			a, err := s.Schedule(text, d, taskID)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Reminder #%d set for %s (in %s), saved as task #%d.",
				a.ID, a.Due.Format("15:04"), HumanDuration(d), taskID), nil
		}))
}
