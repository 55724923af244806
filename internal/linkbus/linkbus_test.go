package linkbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/protocol"
)

func registerContainer(b *Bus) {
	b.Register(Registration{ScriptID: "root", ContainerID: "c1", LinkNumber: 0})
	b.Register(Registration{ScriptID: "child1", ContainerID: "c1", LinkNumber: 2})
	b.Register(Registration{ScriptID: "child2", ContainerID: "c1", LinkNumber: 3})
	b.Register(Registration{ScriptID: "other-container", ContainerID: "c2", LinkNumber: 0})
}

func TestSendLinkSetReachesEveryScriptInContainer(t *testing.T) {
	t.Parallel()
	b := New()
	registerContainer(b)

	var got []string
	b.SetDeliver(func(recipient string, msg protocol.LinkMessage) { got = append(got, recipient) })

	b.Send("root", protocol.LinkSet, 1, "hi", "")
	require.ElementsMatch(t, []string{"root", "child1", "child2"}, got)
}

func TestSendLinkRootOnlyReachesLinkNumberZero(t *testing.T) {
	t.Parallel()
	b := New()
	registerContainer(b)

	var got []string
	b.SetDeliver(func(recipient string, msg protocol.LinkMessage) { got = append(got, recipient) })

	b.Send("child1", protocol.LinkRoot, 0, "", "")
	require.Equal(t, []string{"root"}, got)
}

func TestSendLinkAllOthersExcludesSender(t *testing.T) {
	t.Parallel()
	b := New()
	registerContainer(b)

	var got []string
	b.SetDeliver(func(recipient string, msg protocol.LinkMessage) { got = append(got, recipient) })

	b.Send("child1", protocol.LinkAllOthers, 0, "", "")
	require.ElementsMatch(t, []string{"root", "child2"}, got)
}

func TestSendNumericLinkTargetsExactMatch(t *testing.T) {
	t.Parallel()
	b := New()
	registerContainer(b)

	var got []string
	b.SetDeliver(func(recipient string, msg protocol.LinkMessage) { got = append(got, recipient) })

	b.Send("root", protocol.LinkTarget(3), 0, "", "")
	require.Equal(t, []string{"child2"}, got)
}

func TestSendNeverCrossesContainers(t *testing.T) {
	t.Parallel()
	b := New()
	registerContainer(b)

	var got []string
	b.SetDeliver(func(recipient string, msg protocol.LinkMessage) { got = append(got, recipient) })

	b.Send("root", protocol.LinkSet, 0, "", "")
	require.NotContains(t, got, "other-container")
}

func TestSendFromUnregisteredSenderIsNoOp(t *testing.T) {
	t.Parallel()
	b := New()
	registerContainer(b)

	var got []string
	b.SetDeliver(func(recipient string, msg protocol.LinkMessage) { got = append(got, recipient) })

	b.Send("ghost", protocol.LinkSet, 0, "", "")
	require.Empty(t, got)
}

func TestWithOnDropReceivesDiscardedMessage(t *testing.T) {
	t.Parallel()
	var dropped []protocol.LinkMessage
	b := New(WithBound(1), WithOnDrop(func(recipient string, msg protocol.LinkMessage) { dropped = append(dropped, msg) }))
	b.Register(Registration{ScriptID: "sender", ContainerID: "c1", LinkNumber: 1})
	b.Register(Registration{ScriptID: "recv", ContainerID: "c1", LinkNumber: 2})

	b.Send("sender", protocol.LinkSet, 1, "", "")
	b.Send("sender", protocol.LinkSet, 2, "", "")

	require.Len(t, dropped, 1)
	require.Equal(t, 1, dropped[0].Num)
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	b := New(WithBound(2))
	b.Register(Registration{ScriptID: "sender", ContainerID: "c1", LinkNumber: 1})
	b.Register(Registration{ScriptID: "recv", ContainerID: "c1", LinkNumber: 2})

	b.Send("sender", protocol.LinkSet, 1, "", "")
	b.Send("sender", protocol.LinkSet, 2, "", "")
	b.Send("sender", protocol.LinkSet, 3, "", "")

	queued := b.Drain("recv")
	require.Len(t, queued, 2)
	require.Equal(t, 2, queued[0].Num)
	require.Equal(t, 3, queued[1].Num)
}
