// Package resolver maps source built-in calls to target-language call
// templates (spec §4.2).
package resolver

import "fmt"

// Kind classifies how a resolved call should be emitted.
type Kind int

const (
	KindMethod   Kind = iota // instance call: host.<name>(args...)
	KindProperty             // attribute access, no args: host.<name>
	KindDetected             // indexed access into the `detected` array
	KindStatic               // library function: lib.<name>(args...)
	KindSpecial              // custom handcrafted template
	KindUnmapped             // emits a TODO marker + diagnostic
)

// Resolution is what the function resolver decides for one built-in call.
type Resolution struct {
	Kind         Kind
	Template     string // target expression template, %s placeholders for args
	NeedsAwait   bool   // this call itself is asynchronous
	NeedsAsync   bool   // the enclosing function must become async
	DetectedField string // for KindDetected: the field name on `detected[i]`
	Partial      bool    // mapping exists but semantics differ (spec §9)
}

// detectedFields is layer (a): a fixed table of `detected*` callsites
// mapped to field names (spec §4.2).
var detectedFields = map[string]string{
	"detectedKey":      "id",
	"detectedName":     "name",
	"detectedPos":      "position",
	"detectedRot":      "rotation",
	"detectedVel":      "velocity",
	"detectedType":     "type",
	"detectedTouchUV":  "touchUV",
	"detectedTouchFace": "touchFace",
	"detectedTouchPos": "touchPosition",
	"detectedTouchST":  "touchST",
	"detectedLinkNumber": "linkNumber",
	"detectedGroup":    "group",
	"detectedOwner":    "owner",
}

// asyncBuiltins are the built-ins that force NeedsAwait+NeedsAsync on any
// call site and (transitively, spec §4.4 Pass 1a / §5) on every caller.
var asyncBuiltins = map[string]bool{
	"sleep":              true,
	"httpRequest":        true,
	"readNotecardLine":   true,
	"readNotecard":       true,
	"npcCreate":          true,
	"npcRemove":          true,
	"npcMoveTo":          true,
}

// special is layer (b): a table of calls with nontrivial handcrafted
// semantics, the inclusive-end string helpers, zero-arg-means-clear timer
// set, and math functions lowered to the host math library (spec §4.2).
var special = map[string]Resolution{
	"substring": {
		Kind:     KindSpecial,
		Template: "__host.substring(%s)",
		Partial:  false,
	},
	"deleteSubString": {
		Kind:     KindSpecial,
		Template: "__host.deleteSubString(%s)",
	},
	"setTimerEvent": {
		Kind:       KindSpecial,
		Template:   "__host.setTimerEvent(%s)",
		NeedsAwait: false,
	},
	"pow": {Kind: KindSpecial, Template: "Math.pow(%s)"},
	"sqrt": {Kind: KindSpecial, Template: "Math.sqrt(%s)"},
	"fabs": {Kind: KindSpecial, Template: "Math.abs(%s)"},
	"frand": {Kind: KindSpecial, Template: "(Math.random() * (%s))"},
}

// mapping is layer (c): a name -> (kind, template) table shared with
// documentation (spec §4.2). The full closed set described by spec §4.2
// runs to hundreds of `ll*` built-ins; this is a representative subset
// covering the API surface the rest of this tree (protocol, router,
// hostadapter) actually wires up end to end. An unmapped name falls
// through to KindUnmapped rather than failing closed.
var mapping = map[string]Resolution{
	// Communication
	"say":           {Kind: KindMethod, Template: "__host.say(%s)"},
	"shout":         {Kind: KindMethod, Template: "__host.shout(%s)"},
	"whisper":       {Kind: KindMethod, Template: "__host.whisper(%s)"},
	"listen":        {Kind: KindMethod, Template: "__host.listen(%s)"},
	"listenRemove":  {Kind: KindMethod, Template: "__host.listenRemove(%s)"},
	"instantMessage": {Kind: KindMethod, Template: "__host.instantMessage(%s)"},
	"ownerSay":      {Kind: KindMethod, Template: "__host.ownerSay(%s)"},

	// Transform
	"setPos":      {Kind: KindMethod, Template: "__host.setPosition(%s)"},
	"setRot":      {Kind: KindMethod, Template: "__host.setRotation(%s)"},
	"getPos":      {Kind: KindMethod, Template: "__host.getPosition(%s)"},
	"getRot":      {Kind: KindMethod, Template: "__host.getRotation(%s)"},
	"applyImpulse": {Kind: KindMethod, Template: "__host.applyImpulse(%s)"},
	"moveToTarget": {Kind: KindMethod, Template: "__host.moveToTarget(%s)"},

	// Appearance
	"setColor":  {Kind: KindMethod, Template: "__host.setColor(%s)"},
	"setAlpha":  {Kind: KindMethod, Template: "__host.setAlpha(%s)"},
	"setText":   {Kind: KindMethod, Template: "__host.setText(%s)"},

	// Effects / animation
	"playSound":     {Kind: KindMethod, Template: "__host.playSound(%s)"},
	"loopSound":     {Kind: KindMethod, Template: "__host.loopSound(%s)"},
	"stopSound":     {Kind: KindMethod, Template: "__host.stopSound(%s)"},
	"startAnimation": {Kind: KindMethod, Template: "__host.startAnimation(%s)"},
	"stopAnimation":  {Kind: KindMethod, Template: "__host.stopAnimation(%s)"},
	"particleSystem": {Kind: KindMethod, Template: "__host.particleSystem(%s)"},

	// Sensors
	"sensor":       {Kind: KindMethod, Template: "__host.sensorRequest(%s)"},
	"sensorRepeat": {Kind: KindMethod, Template: "__host.sensorRepeat(%s)"},
	"sensorRemove": {Kind: KindMethod, Template: "__host.sensorRemove(%s)"},

	// Properties (no args)
	"getKey":    {Kind: KindProperty, Template: "__host.key"},
	"getOwner":  {Kind: KindProperty, Template: "__host.owner"},
	"getName":   {Kind: KindProperty, Template: "__host.name"},

	// Static library functions
	"abs": {Kind: KindStatic, Template: "Math.abs(%s)"},
	"min": {Kind: KindStatic, Template: "Math.min(%s)"},
	"max": {Kind: KindStatic, Template: "Math.max(%s)"},

	// Lifecycle
	"die":                {Kind: KindMethod, Template: "__host.die(%s)"},
	"resetScript":        {Kind: KindMethod, Template: "__host.resetScript(%s)"},
	"requestPermissions": {Kind: KindMethod, Template: "__host.requestPermissions(%s)", NeedsAwait: true, NeedsAsync: true},

	// Forced-async built-ins
	"sleep":            {Kind: KindSpecial, Template: "await __host.sleep(%s)", NeedsAwait: true, NeedsAsync: true},
	"httpRequest":       {Kind: KindMethod, Template: "await __host.httpRequest(%s)", NeedsAwait: true, NeedsAsync: true},
	"readNotecardLine":  {Kind: KindMethod, Template: "await __host.readNotecardLine(%s)", NeedsAwait: true, NeedsAsync: true},
	"readNotecard":      {Kind: KindMethod, Template: "await __host.readNotecard(%s)", NeedsAwait: true, NeedsAsync: true},
	"npcCreate": {Kind: KindMethod, Template: "await __host.npcCreate(%s)", NeedsAwait: true, NeedsAsync: true},
	"npcRemove": {Kind: KindMethod, Template: "await __host.npcRemove(%s)", NeedsAwait: true, NeedsAsync: true},
	"npcMoveTo": {Kind: KindMethod, Template: "await __host.npcMoveTo(%s)", NeedsAwait: true, NeedsAsync: true},

	// `partial`-status built-ins (spec §9 Open Question)
	"getBuoyancy": {Kind: KindMethod, Template: "__host.getBuoyancy(%s)", Partial: true},
	"getAgentSize": {Kind: KindMethod, Template: "__host.getAgentSize(%s)", Partial: true},
}

// Resolver is the three-layer built-in lookup (spec §4.2).
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

// Resolve decides the emission template for a source built-in call `name`.
// Layers are consulted in order: detected-field table, special-handler
// table, general mapping table; anything else is unmapped.
func (r *Resolver) Resolve(name string) Resolution {
	if field, ok := detectedFields[name]; ok {
		return Resolution{Kind: KindDetected, DetectedField: field, Template: fmt.Sprintf("detected[i].%s", field)}
	}
	if res, ok := special[name]; ok {
		return withAsyncFlag(name, res)
	}
	if res, ok := mapping[name]; ok {
		return withAsyncFlag(name, res)
	}
	return Resolution{Kind: KindUnmapped, Template: fmt.Sprintf("/* TODO: unmapped built-in %s */ undefined", name)}
}

func withAsyncFlag(name string, res Resolution) Resolution {
	if asyncBuiltins[name] {
		res.NeedsAwait = true
		res.NeedsAsync = true
	}
	return res
}

// IsAsyncBuiltin reports whether name forces async propagation (spec §4.4
// Pass 1a, §5).
func IsAsyncBuiltin(name string) bool {
	return asyncBuiltins[name]
}
