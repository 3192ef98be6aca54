package event

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		e    Event
		want Kind
	}{
		{
			name: "direct message new namespace",
			e:    Event{EventName: "agent.direct_message.chat", DestinationID: "agent:bob"},
			want: KindDirect,
		},
		{
			name: "direct message legacy name",
			e:    Event{EventName: "agent.message", DestinationID: "agent:bob"},
			want: KindDirect,
		},
		{
			name: "direct name without agent destination is system",
			e:    Event{EventName: "agent.direct_message.chat", DestinationID: "mod:workspace"},
			want: KindSystem,
		},
		{
			name: "broadcast by namespace",
			e:    Event{EventName: "agent.broadcast_message.announce", DestinationID: ""},
			want: KindBroadcast,
		},
		{
			name: "broadcast by destination",
			e:    Event{EventName: "thread.message", DestinationID: BroadcastDestination},
			want: KindBroadcast,
		},
		{
			name: "system event",
			e:    Event{EventName: "system.mod.load", DestinationID: "mod:workspace"},
			want: KindSystem,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.e.Classify(); got != tc.want {
				t.Errorf("Classify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAgentID(t *testing.T) {
	id, ok := AgentID("agent:alice")
	if !ok || id != "alice" {
		t.Fatalf("AgentID() = %q, %v", id, ok)
	}
	if _, ok := AgentID("mod:workspace"); ok {
		t.Fatalf("AgentID() should fail for non-agent address")
	}
}
