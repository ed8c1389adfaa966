// Package models holds the data model of spec.md §3: Task, TaskPlan, Step,
// WaveStats, AgentInstance, QualityReport, ToolCall, and Event.
package models

import "time"

// OutputType is the task's desired deliverable shape.
type OutputType string

const (
	OutputReport    OutputType = "report"
	OutputCode      OutputType = "code"
	OutputWebsite   OutputType = "website"
	OutputImage     OutputType = "image"
	OutputVideo     OutputType = "video"
	OutputDataset   OutputType = "dataset"
	OutputDocument  OutputType = "document"
	OutputComposite OutputType = "composite"
	OutputAuto      OutputType = "auto"
)

// TaskStatus is the terminal/non-terminal status of a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskPlanning  TaskStatus = "planning"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// StepStatus is the status of a single DAG vertex (spec.md §3 Step).
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepWaiting   StepStatus = "waiting"
	StepBlocked   StepStatus = "blocked"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Attachment is a file handed to the task at intake.
type Attachment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MIME       string `json:"mime"`
	Size       int64  `json:"size"`
	StorageURL string `json:"storage_url"`
}

// Task is the user request (spec.md §3 Task).
type Task struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	OutputType  OutputType   `json:"output_type"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Status      TaskStatus   `json:"status"`
	Context     map[string]any `json:"context,omitempty"`

	// Steps, when pre-populated by the caller, marks this task as already
	// planned: execute_task (spec.md §6) runs these steps directly instead
	// of invoking the Supervisor's planning loop.
	Steps []*Step `json:"steps,omitempty"`
}

// LogEntry is one line of a Step's execution log.
type LogEntry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// StepError captures a failed step's error kind and detail. It is a plain
// struct rather than a koerrors.Error so that models never imports
// koerrors (scheduler/subagent translate koerrors.Error into this at the
// step boundary).
type StepError struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Step is a DAG vertex (spec.md §3 Step / SubTask node).
type Step struct {
	ID          string         `json:"id"`
	Ordinal     int            `json:"ordinal"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Role        string         `json:"role"`
	Expected    string         `json:"expected_output"`
	Deps        []string       `json:"deps,omitempty"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       *StepError     `json:"error,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	RetryCount  int            `json:"retry_count"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Logs        []LogEntry     `json:"logs,omitempty"`
}

// TaskPlan is the Supervisor's output (spec.md §4.1).
type TaskPlan struct {
	RefinedText    string   `json:"refined_text"`
	Objectives     []string `json:"objectives"`
	SimpleDirect   bool     `json:"simple_direct"`
	DirectAnswer   string   `json:"direct_answer,omitempty"`
	Steps          []*Step  `json:"steps,omitempty"`
	SuggestedRoles []string `json:"suggested_roles,omitempty"`
}

// WaveStats is the per-wave scheduling record (spec.md §3 WaveStats). The
// P50/P99 fields are populated from the HdrHistogram-backed recorder in
// internal/scheduler and stay zero when fewer than one sample was recorded.
type WaveStats struct {
	Wave        int       `json:"wave"`
	TaskCount   int       `json:"task_count"`
	Parallelism int       `json:"parallelism"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	P50Millis   int64     `json:"p50_millis"`
	P99Millis   int64     `json:"p99_millis"`
}

// Progress is the tally required by spec.md §8 invariant 6.
type Progress struct {
	Total     int     `json:"total"`
	Pending   int     `json:"pending"`
	Running   int     `json:"running"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Percent   float64 `json:"percent"`
}

// AgentInstanceStatus is the runtime status of a materialized Sub-Agent.
type AgentInstanceStatus string

const (
	AgentIdle      AgentInstanceStatus = "idle"
	AgentRunning   AgentInstanceStatus = "running"
	AgentCompleted AgentInstanceStatus = "completed"
	AgentFailed    AgentInstanceStatus = "failed"
)

// AgentInstance is a role template materialized for one step execution
// (spec.md §3 "Runtime Agent Instance").
type AgentInstance struct {
	ID             string              `json:"id"`
	Role           string              `json:"role"`
	Status         AgentInstanceStatus `json:"status"`
	CurrentStepID  string              `json:"current_step_id,omitempty"`
	TasksCompleted int                 `json:"tasks_completed"`
	TasksFailed    int                 `json:"tasks_failed"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// SuccessRate returns the instance's running success ratio, or 1 if idle.
func (a *AgentInstance) SuccessRate() float64 {
	total := a.TasksCompleted + a.TasksFailed
	if total == 0 {
		return 1
	}
	return float64(a.TasksCompleted) / float64(total)
}

// ReviewDecision is the Quality-Gate Reviewer's verdict (spec.md §4.5).
type ReviewDecision string

const (
	DecisionContinue ReviewDecision = "continue"
	DecisionRetry    ReviewDecision = "retry"
	DecisionAddStep  ReviewDecision = "add_step"
	DecisionSkipNext ReviewDecision = "skip_next"
)

// NewStepSpec is a reviewer-proposed step for DecisionAddStep.
type NewStepSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Role        string         `json:"role"`
	Expected    string         `json:"expected_output"`
	Deps        []string       `json:"deps,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
}

// QualityReport is the reviewer's output (spec.md §3 QualityReport).
type QualityReport struct {
	Score        float64        `json:"score"`
	Decision     ReviewDecision `json:"decision"`
	Rationale    string         `json:"rationale"`
	NewSteps     []NewStepSpec  `json:"new_steps,omitempty"`
	TargetStepID string         `json:"target_step_id,omitempty"`
}

// ToolCall is a model-emitted tool invocation request (spec.md §3 ToolCall).
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// EventType enumerates the 14 wire event types of spec.md §3/§6.
type EventType string

const (
	EventTaskCreated          EventType = "task_created"
	EventTaskUpdated          EventType = "task_updated"
	EventTaskCompleted        EventType = "task_completed"
	EventTaskLog              EventType = "task_log"
	EventAgentCreated         EventType = "agent_created"
	EventAgentUpdated         EventType = "agent_updated"
	EventAgentRemoved         EventType = "agent_removed"
	EventAgentLog             EventType = "agent_log"
	EventAgentStream          EventType = "agent_stream"
	EventAgentStreamClear     EventType = "agent_stream_clear"
	EventStepStatusChanged    EventType = "step_status_changed"
	EventExecutionFlowUpdated EventType = "execution_flow_updated"
	EventTaskProgress         EventType = "task_progress"
	EventOutputProgress       EventType = "output_progress"
)

// Event is the tagged pub/sub record of spec.md §3.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the library API's best-effort outcome (spec.md §7 propagation
// policy: the library API returns a Result rather than panicking).
type Result struct {
	Success     bool      `json:"success"`
	Output      any       `json:"output,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	Artifact    *Artifact `json:"artifact,omitempty"`
}

// Artifact is the Aggregator's typed deliverable (spec.md GLOSSARY).
type Artifact struct {
	Type  OutputType            `json:"type"`
	Text  string                `json:"text,omitempty"`
	Files map[string]string     `json:"files,omitempty"` // path -> content, for code/document trees
	URIs  []string              `json:"uris,omitempty"`  // binary outputs (image/video)
	Parts map[string]*Artifact  `json:"parts,omitempty"` // composite sub-artifacts
}
