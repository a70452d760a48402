package logging

const (
	// FieldComponent names the subsystem that emitted a record.
	FieldComponent = "component"
	// FieldIdentifier carries a catalog identifier.
	FieldIdentifier = "identifier"
	// FieldSlot names the playback slot (now_playing, up_next).
	FieldSlot = "slot"
	// FieldState carries a rotation state label.
	FieldState = "state"
	// FieldTaskID correlates records belonging to one prefetch task.
	FieldTaskID = "task_id"
	// FieldSessionID identifies a daemon process run.
	FieldSessionID = "session_id"
	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags records that should stand out.
	FieldAlert = "alert"
)
