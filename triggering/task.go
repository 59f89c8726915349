package triggering

// TaskStatus mirrors the status column of the external task store. Only the
// values this core reads or writes are enumerated; the store may carry more.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusError      TaskStatus = "ERROR"
)

// Task is the read-only reference to a persisted task that this core
// triggers. The payload beyond these fields belongs to the task store and
// handler, not to the triggerer.
type Task struct {
	ID       int64      `json:"id"`
	Version  int64      `json:"version"`
	Type     string     `json:"type"`
	Priority int        `json:"priority"`
	Status   TaskStatus `json:"status"`
}

// TriggerMessage is the JSON encoding produced on the wire. It carries only
// the fields a consumer needs to look the task back up and hand it to a
// handler; unknown fields on decode are tolerated so the wire format can grow.
type TriggerMessage struct {
	ID       int64      `json:"id"`
	Version  int64      `json:"version"`
	Type     string     `json:"type"`
	Priority int        `json:"priority"`
	Status   TaskStatus `json:"status"`
}

// ToTriggerMessage projects a Task onto its wire representation.
func (t Task) ToTriggerMessage() TriggerMessage {
	return TriggerMessage{
		ID:       t.ID,
		Version:  t.Version,
		Type:     t.Type,
		Priority: t.Priority,
		Status:   t.Status,
	}
}

// TaskTriggering is handed to the processing service for a task pulled off
// a bucket's topic, carrying enough partition/offset context for the
// completion callback to release it from the bucket's offset tracker.
type TaskTriggering struct {
	Task      TriggerMessage
	BucketID  string
	Topic     string
	Partition int32
	Offset    int64
}
