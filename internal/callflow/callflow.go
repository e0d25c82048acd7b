// Package callflow implements the per-call state machine that orders a
// receptionist conversation.
//
// A [Machine] starts in [StateInit] and walks an exhaustive allow-list of
// transitions ([TransitionTable]) until it reaches [StateEnd]. Illegal moves
// never mutate the machine; they return an [*InvalidTransitionError] so the
// orchestrator can consult [Machine.CanTransitionTo] first and silently skip
// heuristic transitions that do not apply.
//
// Every state additionally carries a timeout arc ([TimeoutArc]): the move the
// call takes when the caller goes quiet. Timeout arcs are privileged and may
// bypass the allow-list, but they are recorded in the history like any other
// transition.
package callflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/vocepta/pkg/types"
)

// State is one node of the call-flow graph.
type State string

const (
	// StateInit is the entry state; the machine is created here.
	StateInit State = "INIT"

	// StateGreet plays the bilingual greeting.
	StateGreet State = "GREET"

	// StateLanguageSelect waits for the caller's language choice.
	StateLanguageSelect State = "LANGUAGE_SELECT"

	// StateClassifyCustomerType determines new vs. existing customer.
	StateClassifyCustomerType State = "CLASSIFY_CUSTOMER_TYPE"

	// StateIntentDiscovery finds out why the caller is calling.
	StateIntentDiscovery State = "INTENT_DISCOVERY"

	// StateInfoCollection gathers callback details (name, number, window).
	StateInfoCollection State = "INFO_COLLECTION"

	// StateConfirmation reads the collected details back to the caller.
	StateConfirmation State = "CONFIRMATION"

	// StateCreateCallbackTask persists the callback work item.
	StateCreateCallbackTask State = "CREATE_CALLBACK_TASK"

	// StateTransferOrWrapup hands the call to a human or says goodbye.
	StateTransferOrWrapup State = "TRANSFER_OR_WRAPUP"

	// StateEnd is terminal; no transition leaves it.
	StateEnd State = "END"

	// StateError is entered when a turn fails beyond recovery.
	StateError State = "ERROR"

	// StateTimeout is entered when the caller stays silent too long during
	// the discovery or collection phases.
	StateTimeout State = "TIMEOUT"
)

// States lists every state in flow order. Useful for exhaustive iteration in
// validation and tests.
var States = []State{
	StateInit,
	StateGreet,
	StateLanguageSelect,
	StateClassifyCustomerType,
	StateIntentDiscovery,
	StateInfoCollection,
	StateConfirmation,
	StateCreateCallbackTask,
	StateTransferOrWrapup,
	StateEnd,
	StateError,
	StateTimeout,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := TransitionTable[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(TransitionTable[s]) == 0 && s.Valid()
}

// TransitionTable is the exhaustive allow-list of legal moves. A transition
// (from, to) is legal iff to appears in TransitionTable[from]. Everything
// else is invalid.
var TransitionTable = map[State][]State{
	StateInit:                 {StateGreet, StateError},
	StateGreet:                {StateLanguageSelect, StateError},
	StateLanguageSelect:       {StateClassifyCustomerType, StateGreet, StateError},
	StateClassifyCustomerType: {StateIntentDiscovery, StateLanguageSelect, StateError},
	StateIntentDiscovery:      {StateInfoCollection, StateConfirmation, StateTransferOrWrapup, StateClassifyCustomerType, StateError},
	StateInfoCollection:       {StateConfirmation, StateIntentDiscovery, StateError},
	StateConfirmation:         {StateCreateCallbackTask, StateTransferOrWrapup, StateInfoCollection, StateError},
	StateCreateCallbackTask:   {StateTransferOrWrapup, StateEnd, StateError},
	StateTransferOrWrapup:     {StateEnd, StateError},
	StateError:                {StateTransferOrWrapup, StateEnd},
	StateTimeout:              {StateEnd, StateError},
	StateEnd:                  {},
}

// Allowed reports whether the move from → to appears in the allow-list.
func Allowed(from, to State) bool {
	for _, t := range TransitionTable[from] {
		if t == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted move that is not in the
// allow-list. The machine is left untouched when this is returned.
type InvalidTransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("callflow: invalid transition %s -> %s", e.From, e.To)
}

// Transition is one recorded move in a machine's history.
type Transition struct {
	// From and To are the endpoints of the move.
	From State
	To   State

	// At is when the move happened.
	At time.Time

	// ViaTimeout marks privileged moves made by [Machine.HandleTimeout].
	ViaTimeout bool
}

// Arc describes the timeout behavior of one state: how long the call may sit
// in it and where it goes when that elapses.
type Arc struct {
	// After is the maximum dwell time in the state.
	After time.Duration

	// Target is the state entered when After elapses.
	Target State
}

// timeoutArcs holds the per-state silence deadlines. END has no arc; a call
// that reached END stays there.
var timeoutArcs = map[State]Arc{
	StateInit:                 {After: 5 * time.Second, Target: StateGreet},
	StateGreet:                {After: 10 * time.Second, Target: StateLanguageSelect},
	StateLanguageSelect:       {After: 15 * time.Second, Target: StateClassifyCustomerType},
	StateClassifyCustomerType: {After: 20 * time.Second, Target: StateIntentDiscovery},
	StateIntentDiscovery:      {After: 60 * time.Second, Target: StateTimeout},
	StateInfoCollection:       {After: 60 * time.Second, Target: StateTimeout},
	StateConfirmation:         {After: 30 * time.Second, Target: StateCreateCallbackTask},
	StateCreateCallbackTask:   {After: 10 * time.Second, Target: StateEnd},
	StateTransferOrWrapup:     {After: 30 * time.Second, Target: StateEnd},
	StateError:                {After: 10 * time.Second, Target: StateEnd},
	StateTimeout:              {After: 10 * time.Second, Target: StateEnd},
}

// TimeoutArc returns the timeout behavior for s. ok is false for states
// without an arc (END) and for unknown states.
func TimeoutArc(s State) (Arc, bool) {
	arc, ok := timeoutArcs[s]
	return arc, ok
}

// Context keys recognized by the machine's context map. The session
// orchestrator reads these when rebuilding the system prompt, and the tool
// dispatcher writes them as the LLM learns facts about the caller.
const (
	CtxLanguage     = "language"
	CtxCustomerType = "customer_type"
	CtxCallerName   = "caller_name"
	CtxCallerNumber = "caller_number"
	CtxIntent       = "intent"
)

// Machine tracks the call-flow position of a single call. It is created when
// the call starts and discarded when the call ends; nothing about it is
// persisted directly (the store keeps its own status column).
//
// Machine is safe for concurrent use: webhook handlers and the session
// goroutine may consult the same machine.
type Machine struct {
	mu        sync.Mutex
	current   State
	history   []Transition
	language  types.Language
	context   map[string]string
	enteredAt time.Time
}

// New returns a machine in [StateInit] speaking lang. LanguageUnknown is
// allowed; the language-select step fills it in later.
func New(lang types.Language) *Machine {
	m := &Machine{
		current:   StateInit,
		language:  lang,
		context:   make(map[string]string, 5),
		enteredAt: time.Now(),
	}
	if lang.Valid() {
		m.context[CtxLanguage] = string(lang)
	}
	return m
}

// Current returns the machine's present state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of every transition taken so far, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// CanTransitionTo reports whether moving to target from the current state is
// in the allow-list.
func (m *Machine) CanTransitionTo(target State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Allowed(m.current, target)
}

// TransitionTo moves the machine to target and records the move. When the
// move is not in the allow-list, the machine is left untouched and an
// [*InvalidTransitionError] is returned.
func (m *Machine) TransitionTo(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !Allowed(m.current, target) {
		return &InvalidTransitionError{From: m.current, To: target}
	}
	m.move(target, false)
	return nil
}

// HandleTimeout performs the privileged timeout arc for the current state,
// bypassing the allow-list. It returns the state entered and true, or the
// unchanged current state and false when the state has no arc (END).
//
// A timeout in LANGUAGE_SELECT commits the caller to English.
func (m *Machine) HandleTimeout() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	arc, ok := timeoutArcs[m.current]
	if !ok {
		return m.current, false
	}
	if m.current == StateLanguageSelect && !m.language.Valid() {
		m.language = types.LanguageEnglish
		m.context[CtxLanguage] = string(types.LanguageEnglish)
	}
	m.move(arc.Target, true)
	return m.current, true
}

// Expired reports whether the machine has sat in its current state past that
// state's timeout as of now. Callers pass time.Now(); tests pass a fixed
// instant.
func (m *Machine) Expired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	arc, ok := timeoutArcs[m.current]
	if !ok {
		return false
	}
	return now.Sub(m.enteredAt) > arc.After
}

// move appends the transition and advances current. Callers hold m.mu.
func (m *Machine) move(target State, viaTimeout bool) {
	now := time.Now()
	m.history = append(m.history, Transition{
		From:       m.current,
		To:         target,
		At:         now,
		ViaTimeout: viaTimeout,
	})
	m.current = target
	m.enteredAt = now
}

// Language returns the caller's selected language, or LanguageUnknown before
// selection.
func (m *Machine) Language() types.Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

// SetLanguage records the caller's language choice in both the language
// field and the context map. Invalid languages are ignored.
func (m *Machine) SetLanguage(lang types.Language) {
	if !lang.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.language = lang
	m.context[CtxLanguage] = string(lang)
}

// Set stores an arbitrary context value. Known keys are the Ctx* constants;
// unknown keys are kept verbatim so tool handlers can stash extra facts.
func (m *Machine) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context[key] = value
}

// SetCustomerType records whether the caller is a new or existing customer.
func (m *Machine) SetCustomerType(t string) { m.Set(CtxCustomerType, t) }

// SetCallerName records the caller's name once learned.
func (m *Machine) SetCallerName(name string) { m.Set(CtxCallerName, name) }

// SetCallerNumber records the caller's phone number.
func (m *Machine) SetCallerNumber(number string) { m.Set(CtxCallerNumber, number) }

// SetIntent records why the caller is calling.
func (m *Machine) SetIntent(intent string) { m.Set(CtxIntent, intent) }

// Get returns the context value for key and whether it was present.
func (m *Machine) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.context[key]
	return v, ok
}

// Context returns a copy of the full context map.
func (m *Machine) Context() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.context))
	for k, v := range m.context {
		out[k] = v
	}
	return out
}
