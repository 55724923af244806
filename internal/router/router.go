// Package router turns a script's `world.X` / `object.Y` method call into a
// command envelope (spec §4.11). It owns the monotonic callId counter and
// the method -> command-type table, including the handful of methods whose
// target command differs from their own name (constructor-like default
// fill-in, e.g. `loopSound` lowers to a `playSound` command with
// `loop: true`).
//
// Grounded on the teacher's internal/scripting/triggers/manager.go for the
// registration-lookup shape reused here as the container-lookup callback,
// and on internal/lang/resolver/resolver.go for the exact set of method
// names a transpiled script can call through `__host`.
package router

import (
	"sync/atomic"

	"glitchscript/internal/protocol"
)

// ContainerLookup resolves a script id to its container id. The manager
// supplies this; the router never tracks placement itself.
type ContainerLookup func(scriptID string) string

// rule describes how one __host method call becomes a Command: which
// command type it emits, the names its positional JS arguments bind to, and
// any default args folded in regardless of what the script passed.
type rule struct {
	cmdType  protocol.CommandType
	argNames []string
	defaults map[string]any
}

// rules is the method name -> rule table (spec §4.11). A method absent from
// this table routes under its own name with positional args named arg0..N,
// which covers the long tail of one-argument and pass-through commands
// without requiring an entry each.
var rules = map[string]rule{
	// Communication
	"say":            {cmdType: protocol.CmdSay, argNames: []string{"channel", "message"}},
	"shout":          {cmdType: protocol.CmdShout, argNames: []string{"channel", "message"}},
	"whisper":        {cmdType: protocol.CmdWhisper, argNames: []string{"channel", "message"}},
	"regionSay":      {cmdType: protocol.CmdRegionSay, argNames: []string{"channel", "message"}},
	"instantMessage": {cmdType: protocol.CmdInstantMessage, argNames: []string{"recipient", "message"}},
	"ownerSay":       {cmdType: protocol.CmdSay, argNames: []string{"message"}, defaults: map[string]any{"channel": 0, "toOwner": true}},
	"email":          {cmdType: protocol.CmdEmail, argNames: []string{"address", "subject", "message"}},

	// Transform
	"setPosition":      {cmdType: protocol.CmdSetPosition, argNames: []string{"position"}},
	"setRotation":      {cmdType: protocol.CmdSetRotation, argNames: []string{"rotation"}},
	"setScale":         {cmdType: protocol.CmdSetScale, argNames: []string{"scale"}},
	"setVelocity":      {cmdType: protocol.CmdSetVelocity, argNames: []string{"velocity"}},
	"applyImpulse":     {cmdType: protocol.CmdApplyImpulse, argNames: []string{"force", "local"}},
	"applyTorque":      {cmdType: protocol.CmdApplyTorque, argNames: []string{"torque", "local"}},
	"moveToTarget":     {cmdType: protocol.CmdMoveToTarget, argNames: []string{"target", "tau"}},
	"stopMoveToTarget": {cmdType: protocol.CmdStopMoveToTarget},
	"lookAt":           {cmdType: protocol.CmdLookAt, argNames: []string{"target", "strength", "damping"}},
	"stopLookAt":       {cmdType: protocol.CmdStopLookAt},

	// Appearance
	"setColor":      {cmdType: protocol.CmdSetColor, argNames: []string{"color", "face"}},
	"setAlpha":      {cmdType: protocol.CmdSetAlpha, argNames: []string{"alpha", "face"}},
	"setTexture":    {cmdType: protocol.CmdSetTexture, argNames: []string{"texture", "face"}},
	"setText":       {cmdType: protocol.CmdSetText, argNames: []string{"text", "color", "alpha"}},
	"setTextColor":  {cmdType: protocol.CmdSetTextColor, argNames: []string{"color", "alpha"}},
	"setShape":      {cmdType: protocol.CmdSetShape, argNames: []string{"shape"}},
	"setSize":       {cmdType: protocol.CmdSetSize, argNames: []string{"size"}},
	"setFullbright": {cmdType: protocol.CmdSetFullbright, argNames: []string{"enabled", "face"}},
	"setGlow":       {cmdType: protocol.CmdSetGlow, argNames: []string{"intensity", "face"}},

	// Effects / animation
	"playSound":          {cmdType: protocol.CmdPlaySound, argNames: []string{"sound", "volume"}, defaults: map[string]any{"loop": false}},
	"loopSound":          {cmdType: protocol.CmdPlaySound, argNames: []string{"sound", "volume"}, defaults: map[string]any{"loop": true}},
	"stopSound":          {cmdType: protocol.CmdStopSound},
	"preloadSound":       {cmdType: protocol.CmdPreloadSound, argNames: []string{"sound"}},
	"particleSystem":     {cmdType: protocol.CmdParticleSystem, argNames: []string{"params"}},
	"stopParticles":      {cmdType: protocol.CmdStopParticles},
	"playAnimation":      {cmdType: protocol.CmdPlayAnimation, argNames: []string{"animation"}},
	"triggerAnimation":   {cmdType: protocol.CmdPlayAnimation, argNames: []string{"animation"}, defaults: map[string]any{"oneShot": true}},
	"stopAnimation":      {cmdType: protocol.CmdStopAnimation, argNames: []string{"animation"}},
	"startAnimation":     {cmdType: protocol.CmdStartAnimation, argNames: []string{"animation"}},
	"setAnimationSpeed":  {cmdType: protocol.CmdSetAnimationSpeed, argNames: []string{"animation", "speed"}},

	// Physics
	"setPhysicsEnabled": {cmdType: protocol.CmdSetPhysicsEnabled, argNames: []string{"enabled"}},
	"setBuoyancy":       {cmdType: protocol.CmdSetBuoyancy, argNames: []string{"buoyancy"}},
	"setDamping":        {cmdType: protocol.CmdSetDamping, argNames: []string{"linear", "angular"}},
	"setHoverHeight":    {cmdType: protocol.CmdSetHoverHeight, argNames: []string{"height", "water", "tau"}},
	"pushObject":        {cmdType: protocol.CmdPushObject, argNames: []string{"impulse", "local"}},

	// Sensors
	"sensorRequest": {cmdType: protocol.CmdSensorRequest, argNames: []string{"name", "id", "type", "range", "arc"}},
	"sensorRepeat":  {cmdType: protocol.CmdSensorRepeat, argNames: []string{"name", "id", "type", "range", "arc", "rate"}},
	"sensorRemove":  {cmdType: protocol.CmdSensorRemove},

	// NPC
	"npcCreate":         {cmdType: protocol.CmdNPCCreate, argNames: []string{"name", "position", "appearance"}},
	"npcRemove":         {cmdType: protocol.CmdNPCRemove, argNames: []string{"npcID"}},
	"npcMoveTo":         {cmdType: protocol.CmdNPCMoveTo, argNames: []string{"npcID", "target"}},
	"npcSetAnimation":   {cmdType: protocol.CmdNPCSetAnimation, argNames: []string{"npcID", "animation"}},
	"npcSay":            {cmdType: protocol.CmdNPCSay, argNames: []string{"npcID", "message"}},

	// Media
	"setMediaURL":    {cmdType: protocol.CmdSetMediaURL, argNames: []string{"url", "face"}},
	"stopMedia":      {cmdType: protocol.CmdStopMedia, argNames: []string{"face"}},
	"loadURL":        {cmdType: protocol.CmdLoadURL, argNames: []string{"message", "url"}},
	"mapDestination": {cmdType: protocol.CmdMapDestination, argNames: []string{"region", "position"}},

	// Lifecycle
	"die":                {cmdType: protocol.CmdDie},
	"rezObject":          {cmdType: protocol.CmdRezObject, argNames: []string{"inventory", "position", "velocity", "rotation", "param"}},
	"requestPermissions": {cmdType: protocol.CmdRequestPermissions, argNames: []string{"agent", "mask"}},
	"sleep":              {cmdType: protocol.CmdSleep, argNames: []string{"seconds"}},

	// Inventory
	"giveInventory":    {cmdType: protocol.CmdGiveInventory, argNames: []string{"target", "inventory"}},
	"removeInventory":  {cmdType: protocol.CmdRemoveInventory, argNames: []string{"inventory"}},
	"takeInventory":    {cmdType: protocol.CmdTakeInventory, argNames: []string{"target", "inventory"}},
	"getInventoryList": {cmdType: protocol.CmdGetInventoryList, argNames: []string{"type"}},

	// Dialogs
	"dialog":     {cmdType: protocol.CmdDialog, argNames: []string{"agent", "message", "buttons", "channel"}},
	"textBox":    {cmdType: protocol.CmdTextBox, argNames: []string{"agent", "message", "channel"}},
	"listDialog": {cmdType: protocol.CmdListDialog, argNames: []string{"agent", "message", "buttons", "channel"}},

	// HTTP / storage / environment
	"httpRequest":      {cmdType: protocol.CmdHTTPRequest, argNames: []string{"url", "params", "body"}},
	"readNotecard":     {cmdType: protocol.CmdReadNotecard, argNames: []string{"name"}},
	"readNotecardLine": {cmdType: protocol.CmdReadNotecard, argNames: []string{"name", "line"}},
	"writeNotecard":    {cmdType: protocol.CmdWriteNotecard, argNames: []string{"name", "contents"}},
	"setEnv":           {cmdType: protocol.CmdSetEnv, argNames: []string{"name", "value"}},
	"getEnv":           {cmdType: protocol.CmdGetEnv, argNames: []string{"name"}},
}

// Router builds command envelopes from method calls arriving through the
// worker pool's api resolver hook (spec §4.11).
type Router struct {
	lookup ContainerLookup
	callID atomic.Uint64
}

// New constructs a Router. lookup must not be nil; it is called once per
// routed call, never cached, so a script moved between containers routes
// correctly on its very next call.
func New(lookup ContainerLookup) *Router {
	return &Router{lookup: lookup}
}

// Route maps one __host method call to a command envelope. argv holds the
// script's positional JS arguments in call order. Unknown methods are
// passed through verbatim as their own command type with arg0..argN-1 keys,
// so the pack's long tail of single-argument commands needs no table entry.
func (r *Router) Route(scriptID, method string, argv []any) protocol.CommandEnvelope {
	ru, ok := rules[method]
	args := map[string]any{}
	cmdType := protocol.CommandType(method)
	if ok {
		cmdType = ru.cmdType
		for name, v := range ru.defaults {
			args[name] = v
		}
		for i, name := range ru.argNames {
			if i < len(argv) {
				args[name] = argv[i]
			}
		}
	} else {
		for i, v := range argv {
			args[argIndexName(i)] = v
		}
	}
	return protocol.CommandEnvelope{
		ScriptID:    scriptID,
		ContainerID: r.lookup(scriptID),
		CallID:      r.callID.Add(1),
		Command:     protocol.NewCommand(cmdType, args),
	}
}

func argIndexName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "arg" + string(digits[i])
	}
	// Falls back to a readable two-digit form; no routed call in this
	// table takes ten or more positional arguments.
	return "arg" + string(digits[i/10]) + string(digits[i%10])
}
