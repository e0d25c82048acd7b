package callstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/vocepta/pkg/types"
)

// MaxIntentChars caps the free-text intent column.
const MaxIntentChars = 1000

// ─────────────────────────────────────────────────────────────────────────────
// Enums
// ─────────────────────────────────────────────────────────────────────────────

// CallStatus is the persisted position of a call. The flow statuses mirror
// the conversation states; COMPLETED, TRANSFERRED and FAILED are outcomes
// written by the telephony webhooks and the transfer tool.
type CallStatus string

const (
	StatusInit                 CallStatus = "INIT"
	StatusGreet                CallStatus = "GREET"
	StatusLanguageSelect       CallStatus = "LANGUAGE_SELECT"
	StatusClassifyCustomerType CallStatus = "CLASSIFY_CUSTOMER_TYPE"
	StatusIntentDiscovery      CallStatus = "INTENT_DISCOVERY"
	StatusInfoCollection       CallStatus = "INFO_COLLECTION"
	StatusConfirmation         CallStatus = "CONFIRMATION"
	StatusCreateCallbackTask   CallStatus = "CREATE_CALLBACK_TASK"
	StatusTransferOrWrapup     CallStatus = "TRANSFER_OR_WRAPUP"
	StatusEnd                  CallStatus = "END"
	StatusCompleted            CallStatus = "COMPLETED"
	StatusTransferred          CallStatus = "TRANSFERRED"
	StatusFailed               CallStatus = "FAILED"
)

// statusGraph is the allow-list of legal status advances. Conversation
// statuses follow the call-flow design; every status listed here may
// additionally finish as COMPLETED or FAILED, and every one except END as
// TRANSFERRED (see CanChangeStatus). COMPLETED, TRANSFERRED and FAILED are
// terminal.
var statusGraph = map[CallStatus][]CallStatus{
	StatusInit:                 {StatusGreet},
	StatusGreet:                {StatusLanguageSelect},
	StatusLanguageSelect:       {StatusClassifyCustomerType, StatusGreet},
	StatusClassifyCustomerType: {StatusIntentDiscovery, StatusLanguageSelect},
	StatusIntentDiscovery:      {StatusInfoCollection, StatusConfirmation, StatusTransferOrWrapup, StatusClassifyCustomerType},
	StatusInfoCollection:       {StatusConfirmation, StatusIntentDiscovery},
	StatusConfirmation:         {StatusCreateCallbackTask, StatusTransferOrWrapup, StatusInfoCollection},
	StatusCreateCallbackTask:   {StatusTransferOrWrapup, StatusEnd},
	StatusTransferOrWrapup:     {StatusEnd},
	StatusEnd:                  {},
	StatusCompleted:            nil,
	StatusTransferred:          nil,
	StatusFailed:               nil,
}

// Valid reports whether s is a known status.
func (s CallStatus) Valid() bool {
	_, ok := statusGraph[s]
	return ok
}

// Terminal reports whether no status advance leaves s. A terminal status is
// never overwritten, so a late webhook cannot erase a recorded outcome.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTransferred, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseCallStatus converts a status string (any case) into a [CallStatus].
func ParseCallStatus(s string) (CallStatus, error) {
	cs := CallStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !cs.Valid() {
		return "", fmt.Errorf("callstore: unknown call status %q", s)
	}
	return cs, nil
}

// CanChangeStatus reports whether a stored call may move from → to. Writing
// the same status again is a legal no-op so webhook retries stay idempotent.
func CanChangeStatus(from, to CallStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusCompleted, StatusFailed:
		return true
	case StatusTransferred:
		return from != StatusEnd
	}
	for _, t := range statusGraph[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CustomerType classifies the caller's relationship with the business.
type CustomerType string

const (
	CustomerNew      CustomerType = "NEW"
	CustomerExisting CustomerType = "EXISTING"
	CustomerUnknown  CustomerType = "UNKNOWN"
)

// Valid reports whether t is a known customer type.
func (t CustomerType) Valid() bool {
	switch t {
	case CustomerNew, CustomerExisting, CustomerUnknown:
		return true
	default:
		return false
	}
}

// ParseCustomerType converts a customer-type string (any case) into a
// [CustomerType].
func ParseCustomerType(s string) (CustomerType, error) {
	ct := CustomerType(strings.ToUpper(strings.TrimSpace(s)))
	if !ct.Valid() {
		return "", fmt.Errorf("callstore: unknown customer type %q", s)
	}
	return ct, nil
}

// Priority orders callback tasks for staff. Higher is more pressing.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// String returns the label used in notification subjects and logs.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// ParsePriority converts a priority label (any case) into a [Priority].
// "critical" is accepted as an alias for URGENT: transfer-failure callbacks
// use it, but the data layer stores a single top level.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "NORMAL", "":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "URGENT", "CRITICAL":
		return PriorityUrgent, nil
	default:
		return 0, fmt.Errorf("callstore: unknown priority %q", s)
	}
}

// TaskStatus is the lifecycle position of a callback task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	default:
		return false
	}
}

// ParseTaskStatus converts a task-status string (any case) into a
// [TaskStatus].
func ParseTaskStatus(s string) (TaskStatus, error) {
	ts := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !ts.Valid() {
		return "", fmt.Errorf("callstore: unknown task status %q", s)
	}
	return ts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Entities
// ─────────────────────────────────────────────────────────────────────────────

// Call is the persistent record of one inbound call.
type Call struct {
	// ID is the stable identifier, preferably the telephony provider's call
	// SID. Stores generate one when left empty.
	ID string

	// FromNumber is the caller's number in E.164-ish form. Required.
	FromNumber string

	// Language is the caller's selected language; LanguageUnknown until the
	// language-select step completes.
	Language types.Language

	// CustomerType is empty until classified.
	CustomerType CustomerType

	// Intent is a short free-text statement of why the caller called.
	Intent string

	// Status tracks the call through the flow graph to its outcome.
	Status CallStatus

	// Summary is an optional wrap-up written at call end.
	Summary string

	// Transcript holds the serialized transcript JSON document.
	Transcript string

	// Costs maps cost keys (token counts, duration seconds) to numbers.
	Costs map[string]float64

	// CreatedAt and UpdatedAt are store-managed.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCall builds a Call in INIT and validates it. id may be empty; the store
// assigns a generated one on create.
func NewCall(id, fromNumber string) (*Call, error) {
	c := &Call{
		ID:         id,
		FromNumber: fromNumber,
		Status:     StatusInit,
		Costs:      map[string]float64{},
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every constrained field and joins all violations into a
// single error.
func (c *Call) Validate() error {
	var errs []error
	if err := ValidatePhoneNumber(c.FromNumber); err != nil {
		errs = append(errs, fmt.Errorf("from_number: %w", err))
	}
	if c.Language != types.LanguageUnknown && !c.Language.Valid() {
		errs = append(errs, fmt.Errorf("language: unsupported %q", c.Language))
	}
	if c.CustomerType != "" && !c.CustomerType.Valid() {
		errs = append(errs, fmt.Errorf("customer_type: unknown %q", c.CustomerType))
	}
	if len(c.Intent) > MaxIntentChars {
		errs = append(errs, fmt.Errorf("intent: %d chars exceeds limit of %d", len(c.Intent), MaxIntentChars))
	}
	if c.Status != "" && !c.Status.Valid() {
		errs = append(errs, fmt.Errorf("status: unknown %q", c.Status))
	}
	return errors.Join(errs...)
}

// CallbackTask is a staff work item to phone a caller back. At most one
// exists per call.
type CallbackTask struct {
	// ID is store-generated.
	ID string

	// CallID references the originating [Call]. Unique across tasks.
	CallID string

	// Priority orders the staff queue.
	Priority Priority

	// Name is the caller's name when known.
	Name string

	// CallbackNumber is the E.164-ish number to dial. Required.
	CallbackNumber string

	// BestTimeWindow is the caller's preferred callback window, free text.
	BestTimeWindow string

	// Notes carries extra context for staff.
	Notes string

	// Assignee optionally names the staff member who picked the task up.
	Assignee string

	// Status is the task lifecycle position; PENDING when created.
	Status TaskStatus

	// CreatedAt and UpdatedAt are store-managed.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCallbackTask builds a PENDING task and validates it.
func NewCallbackTask(callID, callbackNumber string, priority Priority) (*CallbackTask, error) {
	t := &CallbackTask{
		CallID:         callID,
		CallbackNumber: callbackNumber,
		Priority:       priority,
		Status:         TaskPending,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every constrained field and joins all violations into a
// single error.
func (t *CallbackTask) Validate() error {
	var errs []error
	if strings.TrimSpace(t.CallID) == "" {
		errs = append(errs, errors.New("call_id: required"))
	}
	if err := ValidatePhoneNumber(t.CallbackNumber); err != nil {
		errs = append(errs, fmt.Errorf("callback_number: %w", err))
	}
	if !t.Priority.Valid() {
		errs = append(errs, fmt.Errorf("priority: out of range %d", int(t.Priority)))
	}
	if t.Status != "" && !t.Status.Valid() {
		errs = append(errs, fmt.Errorf("status: unknown %q", t.Status))
	}
	return errors.Join(errs...)
}

// phoneChars matches a loose E.164 form: an optional leading plus, then
// digits that may be grouped with spaces or dashes.
var phoneChars = regexp.MustCompile(`^\+?[0-9][0-9 \-]*$`)

// ValidatePhoneNumber checks a loose E.164 form: optional leading +, digits
// possibly grouped by spaces or dashes, 7 to 15 digits total.
func ValidatePhoneNumber(number string) error {
	n := strings.TrimSpace(number)
	if n == "" {
		return errors.New("required")
	}
	if !phoneChars.MatchString(n) {
		return fmt.Errorf("malformed number %q", number)
	}
	digits := 0
	for _, r := range n {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return fmt.Errorf("number %q has %d digits, want 7-15", number, digits)
	}
	return nil
}
