package querytrace

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/greymass/ramindex/libraries/logger"
)

const (
	CategoryQuery = "query"
	CategoryDebug = "debug-query"
)

// Tracer records the steps of one query. A disabled tracer is a no-op.
type Tracer struct {
	enabled   bool
	startTime time.Time
	endpoint  string
	subject   string
	steps     []step
	metadata  map[string]any
}

type step struct {
	component string
	action    string
	duration  time.Duration
	count     int
	details   string
}

type StepTimer struct {
	tracer    *Tracer
	component string
	action    string
	startTime time.Time
	count     int
	details   string
}

type TraceOutput struct {
	TotalMs float64           `json:"total_ms"`
	Steps   []TraceStepOutput `json:"steps"`
}

type TraceStepOutput struct {
	Component  string  `json:"component"`
	Action     string  `json:"action"`
	DurationMs float64 `json:"duration_ms"`
	Count      int     `json:"count,omitempty"`
	Details    string  `json:"details,omitempty"`
}

// IsClientTraceAllowed reports whether the operator enabled query tracing,
// which lets clients ask for trace output with ?trace=true.
func IsClientTraceAllowed() bool {
	return logger.IsCategoryEnabled(CategoryDebug) || logger.IsCategoryEnabled(CategoryQuery)
}

func New(endpoint, subject string) *Tracer {
	if !IsClientTraceAllowed() {
		return &Tracer{}
	}
	return &Tracer{
		enabled:   true,
		startTime: time.Now(),
		endpoint:  endpoint,
		subject:   subject,
		steps:     make([]step, 0, 4),
		metadata:  make(map[string]any),
	}
}

func (t *Tracer) Enabled() bool {
	return t.enabled
}

func (t *Tracer) Step(component, action string) *StepTimer {
	if !t.enabled {
		return &StepTimer{}
	}
	return &StepTimer{tracer: t, component: component, action: action, startTime: time.Now()}
}

func (st *StepTimer) WithCount(count int) *StepTimer {
	st.count = count
	return st
}

func (st *StepTimer) WithDetails(details string) *StepTimer {
	st.details = details
	return st
}

func (st *StepTimer) End() {
	if st.tracer == nil {
		return
	}
	st.tracer.steps = append(st.tracer.steps, step{
		component: st.component,
		action:    st.action,
		duration:  time.Since(st.startTime),
		count:     st.count,
		details:   st.details,
	})
}

func (t *Tracer) AddStepWithCount(component, action string, duration time.Duration, count int, details string) {
	if !t.enabled {
		return
	}
	t.steps = append(t.steps, step{component: component, action: action, duration: duration, count: count, details: details})
}

func (t *Tracer) SetMetadata(key string, value any) {
	if !t.enabled {
		return
	}
	t.metadata[key] = value
}

func (t *Tracer) Output() *TraceOutput {
	if !t.enabled {
		return nil
	}
	out := &TraceOutput{
		TotalMs: float64(time.Since(t.startTime).Microseconds()) / 1000,
		Steps:   make([]TraceStepOutput, 0, len(t.steps)),
	}
	for _, s := range t.steps {
		out.Steps = append(out.Steps, TraceStepOutput{
			Component:  s.component,
			Action:     s.action,
			DurationMs: float64(s.duration.Microseconds()) / 1000,
			Count:      s.count,
			Details:    s.details,
		})
	}
	return out
}

func (t *Tracer) Log() {
	if !t.enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "query_path endpoint=%s subject=%s total=%v", t.endpoint, t.subject, time.Since(t.startTime))

	keys := make([]string, 0, len(t.metadata))
	for k := range t.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, t.metadata[k])
	}
	sb.WriteByte('\n')

	for i, s := range t.steps {
		prefix := "├─"
		if i == len(t.steps)-1 {
			prefix = "└─"
		}
		fmt.Fprintf(&sb, "  %s [%s] %s: %v", prefix, s.component, s.action, s.duration)
		if s.count > 0 {
			fmt.Fprintf(&sb, " count=%d", s.count)
		}
		if s.details != "" {
			fmt.Fprintf(&sb, " (%s)", s.details)
		}
		sb.WriteByte('\n')
	}

	logger.Printf(CategoryDebug, "%s", sb.String())
}
