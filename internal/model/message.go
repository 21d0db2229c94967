package model

// Message is the payload the Scheduler publishes to the broker and the
// Worker Actor consumes: the serialised task plus enough routing metadata
// for the Failure Sink to locate the record on terminal delivery failure
// (spec.md §4.6, §6 "Broker contract").
type Message struct {
	Task       Task   `json:"task"`
	WorkflowID string `json:"workflow_id"`
	TaskID     string `json:"task_id"`
	Queue      string `json:"queue"`
	// DeferCount tracks how many times this message has been re-published
	// after an OutcomeDeferred decision. Re-publishing acks the original
	// delivery, so the broker's own redelivery counter resets to 1 on every
	// defer; DeferCount survives that round-trip because it travels in the
	// payload itself.
	DeferCount int `json:"defer_count,omitempty"`
}
