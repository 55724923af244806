package protocol

// CommandType is the discriminant of a ScriptCommand (spec §3, ~80 variants
// grouped by the categories named in §3). The target-language generated code
// dispatches on the analogous discriminant with an exhaustive switch (spec
// §9 "Dispatch over many message shapes") rather than a map of function
// pointers, so the command list stays a single grep-able unit.
type CommandType string

const (
	// Transform
	CmdSetPosition    CommandType = "setPosition"
	CmdSetRotation    CommandType = "setRotation"
	CmdSetScale       CommandType = "setScale"
	CmdSetVelocity    CommandType = "setVelocity"
	CmdApplyImpulse   CommandType = "applyImpulse"
	CmdApplyTorque    CommandType = "applyTorque"
	CmdMoveToTarget   CommandType = "moveToTarget"
	CmdStopMoveToTarget CommandType = "stopMoveToTarget"
	CmdLookAt         CommandType = "lookAt"
	CmdStopLookAt     CommandType = "stopLookAt"

	// Appearance
	CmdSetColor       CommandType = "setColor"
	CmdSetAlpha       CommandType = "setAlpha"
	CmdSetTexture     CommandType = "setTexture"
	CmdSetText        CommandType = "setText"
	CmdSetTextColor   CommandType = "setTextColor"
	CmdSetShape       CommandType = "setShape"
	CmdSetSize        CommandType = "setSize"
	CmdSetFullbright  CommandType = "setFullbright"
	CmdSetGlow        CommandType = "setGlow"

	// Communication
	CmdSay            CommandType = "say"
	CmdShout          CommandType = "shout"
	CmdWhisper        CommandType = "whisper"
	CmdListenRegister CommandType = "listenRegister"
	CmdListenRemove   CommandType = "listenRemove"
	CmdRegionSay      CommandType = "regionSay"
	CmdInstantMessage CommandType = "instantMessage"
	CmdEmail          CommandType = "email"

	// Effects
	CmdPlaySound      CommandType = "playSound"
	CmdStopSound      CommandType = "stopSound"
	CmdPreloadSound   CommandType = "preloadSound"
	CmdParticleSystem CommandType = "particleSystem"
	CmdStopParticles  CommandType = "stopParticles"
	CmdPlayAnimation  CommandType = "playAnimation"
	CmdStopAnimation  CommandType = "stopAnimation"

	// Animation
	CmdSetAnimationSpeed CommandType = "setAnimationSpeed"
	CmdStartAnimation    CommandType = "startAnimation"
	CmdTriggerAnimation  CommandType = "triggerAnimation"

	// Physics
	CmdSetPhysicsEnabled CommandType = "setPhysicsEnabled"
	CmdSetBuoyancy       CommandType = "setBuoyancy"
	CmdSetDamping        CommandType = "setDamping"
	CmdSetHoverHeight    CommandType = "setHoverHeight"
	CmdPushObject        CommandType = "pushObject"

	// Sensors
	CmdSensorRequest  CommandType = "sensorRequest"
	CmdSensorRepeat   CommandType = "sensorRepeat"
	CmdSensorRemove   CommandType = "sensorRemove"

	// NPC
	CmdNPCCreate      CommandType = "npcCreate"
	CmdNPCRemove      CommandType = "npcRemove"
	CmdNPCMoveTo      CommandType = "npcMoveTo"
	CmdNPCSetAnimation CommandType = "npcSetAnimation"
	CmdNPCSay         CommandType = "npcSay"

	// Media
	CmdSetMediaURL    CommandType = "setMediaURL"
	CmdStopMedia      CommandType = "stopMedia"
	CmdLoadURL        CommandType = "loadURL"
	CmdMapDestination CommandType = "mapDestination"

	// Lifecycle
	CmdDie            CommandType = "die"
	CmdRezObject      CommandType = "rezObject"
	CmdRequestPermissions CommandType = "requestPermissions"
	CmdResetScript    CommandType = "resetScript"
	CmdSleep          CommandType = "sleep"
	CmdSetTimerEvent  CommandType = "setTimerEvent"

	// Inventory
	CmdGiveInventory  CommandType = "giveInventory"
	CmdRemoveInventory CommandType = "removeInventory"
	CmdTakeInventory  CommandType = "takeInventory"
	CmdGetInventoryList CommandType = "getInventoryList"

	// Dialogs
	CmdDialog         CommandType = "dialog"
	CmdTextBox        CommandType = "textBox"
	CmdListDialog     CommandType = "listDialog"

	// HTTP / storage / environment (round out the ~80 closed set)
	CmdHTTPRequest    CommandType = "httpRequest"
	CmdReadNotecard   CommandType = "readNotecard"
	CmdWriteNotecard  CommandType = "writeNotecard"
	CmdSetEnv         CommandType = "setEnv"
	CmdGetEnv         CommandType = "getEnv"
	CmdLog            CommandType = "log"
)

// CommandParam holds a parameter value. Params are plain serializable data , 
// no references, no functions, so an envelope can cross the worker boundary
// as JSON (spec §3 "Command envelope" invariant I6).
type CommandParam = any

// Command is the tagged-union payload of a CommandEnvelope.
type Command struct {
	Type CommandType    `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// NewCommand builds a Command, defaulting Args to an empty (non-nil) map so
// JSON round-trips produce `{}` rather than `null` (spec R1).
func NewCommand(t CommandType, args map[string]any) Command {
	if args == nil {
		args = map[string]any{}
	}
	return Command{Type: t, Args: args}
}
