package worker

// runtimePrelude is evaluated in every slot's goja.Runtime before a script's
// transformed source, after installEndowments has bound the native Go
// functions its __host wrappers call. It supplies the vector/quaternion value types codegen's
// operator-overload lowering targets (internal/lang/typetrack) and the
// __RuntimeBase every transformed class extends (internal/sandbox
// lowerModule).
const runtimePrelude = `
function GVector(x, y, z) {
  this.x = x; this.y = y; this.z = z;
}
GVector.prototype.add = function(o) { return new GVector(this.x + o.x, this.y + o.y, this.z + o.z); };
GVector.prototype.sub = function(o) { return new GVector(this.x - o.x, this.y - o.y, this.z - o.z); };
GVector.prototype.scale = function(s) { return new GVector(this.x * s, this.y * s, this.z * s); };
GVector.prototype.negate = function() { return new GVector(-this.x, -this.y, -this.z); };
GVector.prototype.rotateBy = function(q) {
  var ix = q.s * this.x + q.y * this.z - q.z * this.y;
  var iy = q.s * this.y + q.z * this.x - q.x * this.z;
  var iz = q.s * this.z + q.x * this.y - q.y * this.x;
  var iw = -q.x * this.x - q.y * this.y - q.z * this.z;
  return new GVector(
    ix * q.s + iw * -q.x + iy * -q.z - iz * -q.y,
    iy * q.s + iw * -q.y + iz * -q.x - ix * -q.z,
    iz * q.s + iw * -q.z + ix * -q.y - iy * -q.x
  );
};

function GQuaternion(x, y, z, s) {
  this.x = x; this.y = y; this.z = z; this.s = s;
}
GQuaternion.prototype.multiply = function(o) {
  return new GQuaternion(
    this.s * o.x + this.x * o.s + this.y * o.z - this.z * o.y,
    this.s * o.y - this.x * o.z + this.y * o.s + this.z * o.x,
    this.s * o.z + this.x * o.y - this.y * o.x + this.z * o.s,
    this.s * o.s - this.x * o.x - this.y * o.y - this.z * o.z
  );
};
GQuaternion.prototype.negate = function() { return new GQuaternion(-this.x, -this.y, -this.z, -this.s); };

var __host = {};
__host.vector = function(x, y, z) { return new GVector(x, y, z); };
__host.rotation = function(x, y, z, s) { return new GQuaternion(x, y, z, s); };
__host.changeState = function(name) { return __hostChangeState(name); };
__host.jump = function(label) { return __hostJump(label); };

[
  "say", "shout", "whisper", "regionSay", "instantMessage", "ownerSay", "email",
  "setPosition", "setRotation", "setScale", "setVelocity", "applyImpulse",
  "applyTorque", "moveToTarget", "stopMoveToTarget", "lookAt", "stopLookAt",
  "setColor", "setAlpha", "setTexture", "setText", "setTextColor", "setShape",
  "setSize", "setFullbright", "setGlow", "playSound", "loopSound", "stopSound",
  "preloadSound", "particleSystem", "stopParticles", "playAnimation",
  "stopAnimation", "setAnimationSpeed", "startAnimation", "triggerAnimation",
  "setPhysicsEnabled", "setBuoyancy", "setDamping", "setHoverHeight",
  "pushObject", "sensorRequest", "sensorRepeat", "sensorRemove", "listen",
  "listenRemove", "die", "resetScript", "setTimerEvent", "sendLinkMessage",
  "giveInventory", "removeInventory", "takeInventory", "getInventoryList",
  "dialog", "textBox", "listDialog", "setMediaURL", "stopMedia", "loadURL",
  "mapDestination", "setEnv", "getEnv", "log"
].forEach(function(name) {
  __host[name] = function() {
    return __invokeSync(name, Array.prototype.slice.call(arguments));
  };
});

// substring/deleteSubString are inclusive-end string primitives whose
// wrap-around semantics (spec §4.2) are implemented natively in Go
// (installEndowments), not round-tripped through the host API resolver:
// they're pure string math, not a host side effect.
__host.substring = function(s, start, end) { return __nativeSubstring(s, start, end); };
__host.deleteSubString = function(s, start, end) { return __nativeDeleteSubString(s, start, end); };

[
  "sleep", "httpRequest", "readNotecard", "readNotecardLine", "npcCreate",
  "npcRemove", "npcMoveTo", "npcSetAnimation", "npcSay", "requestPermissions",
  "rezObject"
].forEach(function(name) {
  __host[name] = function() {
    return __invokeAsync(name, Array.prototype.slice.call(arguments));
  };
});

class __RuntimeBase {
  constructor() {}
}
`
