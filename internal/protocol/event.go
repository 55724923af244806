package protocol

// EventType is the discriminant of a ScriptEvent (spec §3, ~25 variants).
type EventType string

const (
	EventStateEntry        EventType = "state_entry"
	EventStateExit         EventType = "state_exit"
	EventTouchStart        EventType = "touchStart"
	EventTouchEnd          EventType = "touchEnd"
	EventCollisionStart    EventType = "collisionStart"
	EventCollisionEnd      EventType = "collisionEnd"
	EventLandCollision     EventType = "landCollision"
	EventSensor            EventType = "sensor"
	EventNoSensor          EventType = "noSensor"
	EventListen            EventType = "listen"
	EventLinkMessage       EventType = "linkMessage"
	EventTimer             EventType = "timer"
	EventHTTPResponse      EventType = "httpResponse"
	EventDialogResponse    EventType = "dialogResponse"
	EventPermissionResponse EventType = "permissionResponse"
	EventMoneyReceived     EventType = "moneyReceived"
	EventAttach            EventType = "attach"
	EventDetach            EventType = "detach"
	EventRez               EventType = "rez"
	EventChanged           EventType = "changed"
	EventRuntimeError      EventType = "runtimeError"
	EventAtTarget          EventType = "atTarget"
	EventNotAtTarget       EventType = "notAtTarget"
	EventDataserver        EventType = "dataserver"
	EventOnRez             EventType = "on_rez"
)

// Agent describes a perception-event participant (touch/collision/sensor).
type Agent struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position [3]float64 `json:"position,omitempty"`
}

// Event is the tagged-union payload of an EventEnvelope.
type Event struct {
	Type EventType      `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

func NewEvent(t EventType, args map[string]any) Event {
	if args == nil {
		args = map[string]any{}
	}
	return Event{Type: t, Args: args}
}

// HandlerName maps an EventType to the event-handler method name the code
// generator emits (spec §4.4 "Event handler signatures follow a fixed
// per-event template"). Table-driven per spec §4.9.
var handlerNames = map[EventType]string{
	EventStateEntry:         "state_entry",
	EventStateExit:          "state_exit",
	EventTouchStart:         "touch_start",
	EventTouchEnd:           "touch_end",
	EventCollisionStart:     "collision_start",
	EventCollisionEnd:       "collision_end",
	EventLandCollision:      "land_collision",
	EventSensor:             "sensor",
	EventNoSensor:           "no_sensor",
	EventListen:             "listen",
	EventLinkMessage:        "link_message",
	EventTimer:              "timer",
	EventHTTPResponse:       "http_response",
	EventDialogResponse:     "dialog_response",
	EventPermissionResponse: "run_time_permissions",
	EventMoneyReceived:      "money",
	EventAttach:             "attach",
	EventDetach:             "detach",
	EventRez:                "on_rez",
	EventChanged:            "changed",
	EventRuntimeError:       "runtime_error",
	EventAtTarget:           "at_target",
	EventNotAtTarget:        "not_at_target",
	EventDataserver:         "dataserver",
	EventOnRez:              "on_rez",
}

// HandlerName returns the emitted method name for an event type, or "" if
// the event is unknown (caller should log-and-drop per spec §4.9).
func HandlerName(t EventType) (string, bool) {
	name, ok := handlerNames[t]
	return name, ok
}

// eventArgOrder is the fixed per-event positional argument template (spec
// §4.4 "Event handler signatures follow a fixed per-event template"). A
// handler's declared parameters are matched to these keys by position, not
// by the identifier the script author happened to write, so the order here
// is load-bearing: scenario S6 hard-codes `onTouchStart(agent, 2)`, which
// only holds if "agent" is always delivered before "face". Events the
// manager/dispatcher construct internally (link_message, listen, timer)
// use exactly the keys those packages already set on Event.Args; the rest
// mirror the source language's standard event field order for a host
// supplying world events from outside the process.
var eventArgOrder = map[EventType][]string{
	EventStateEntry:         nil,
	EventStateExit:          nil,
	EventTouchStart:         {"agent", "face", "detected"},
	EventTouchEnd:           {"agent", "face", "detected"},
	EventCollisionStart:     {"agent", "detected"},
	EventCollisionEnd:       {"agent", "detected"},
	EventLandCollision:      {"position"},
	EventSensor:             {"detected"},
	EventNoSensor:           nil,
	EventListen:             {"channel", "name", "id", "message"},
	EventLinkMessage:        {"senderLink", "num", "str", "id"},
	EventTimer:              {"timerId"},
	EventHTTPResponse:       {"requestId", "status", "metadata", "body"},
	EventDialogResponse:     {"id", "button", "buttonIndex"},
	EventPermissionResponse: {"permissions"},
	EventMoneyReceived:      {"id", "amount"},
	EventAttach:             {"id"},
	EventDetach:             {"id"},
	EventRez:                {"startParam"},
	EventChanged:            {"change"},
	EventRuntimeError:       {"message"},
	EventAtTarget:           {"targetNumber", "targetPosition", "ourPosition"},
	EventNotAtTarget:        nil,
	EventDataserver:         {"queryId", "data"},
	EventOnRez:              {"startParam"},
}

// ArgOrder returns the fixed argument-name order for an event type. A key
// absent from ev.Args (e.g. "detected" when the handler body never
// referenced a detected* built-in) yields undefined in that position,
// which JS silently tolerates for a parameter the generated handler never
// declared.
func ArgOrder(t EventType) []string {
	return eventArgOrder[t]
}

// detectedCapable lists event types whose handler signature includes the
// `detected[]` parameter when the handler body references `detected*`
// built-ins (spec §4.4 Pass 1b).
var detectedCapable = map[EventType]bool{
	EventTouchStart:     true,
	EventTouchEnd:       true,
	EventCollisionStart: true,
	EventCollisionEnd:   true,
	EventSensor:         true,
}

func IsDetectedCapable(t EventType) bool {
	return detectedCapable[t]
}
