// Package commgraph derives the agent communication graph from the roster,
// live statuses and the recent message feed, lays it out with a bounded
// force simulation, and answers hover/tooltip queries against the result.
//
// Everything here is synchronous and allocation-local: a Graph value is
// rebuilt from scratch on every refresh and never shared mid-layout.
package commgraph

import (
	"fmt"
	"strings"

	"clawpulse/internal/domain"
)

const (
	SpawnWeight     = 2.0
	SharedWeightCap = 5
)

type EdgeKind uint8

const (
	KindSpawn EdgeKind = iota + 1
	KindSharedChannel
)

func (k EdgeKind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindSharedChannel:
		return "shared-channel"
	default:
		return fmt.Sprintf("EdgeKind(%d)", uint8(k))
	}
}

func (k EdgeKind) MarshalText() ([]byte, error) {
	switch k {
	case KindSpawn, KindSharedChannel:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown edge kind %d", uint8(k))
	}
}

func (k *EdgeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "spawn":
		*k = KindSpawn
	case "shared-channel":
		*k = KindSharedChannel
	default:
		return fmt.Errorf("unknown edge kind %q", string(text))
	}
	return nil
}

// Node is one agent. X and Y are only meaningful on a Graph returned by
// Layout.
type Node struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Role   string            `json:"role"`
	Color  string            `json:"color,omitempty"`
	Status domain.AgentState `json:"status"`
	X      float64           `json:"x"`
	Y      float64           `json:"y"`
}

// Edge connects two node ids. Spawn edges are directed Source -> Target;
// shared-channel edges store the pair sorted so Source < Target.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Kind     EdgeKind `json:"kind"`
	Label    string   `json:"label"`
	Weight   float64  `json:"weight"`
	Channels []string `json:"channels,omitempty"`
}

func (e Edge) SelfLoop() bool {
	return e.Source == e.Target
}

func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type pairKey struct {
	a, b string
}

func canonicalPair(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Build derives nodes and edges. Spawn edges are always emitted before any
// shared-channel edge because suppression scans the spawn edges already
// built.
func Build(roster []domain.Agent, statuses []domain.AgentStatus, messages []domain.Message) Graph {
	g := Graph{
		Nodes: []Node{},
		Edges: []Edge{},
	}
	if len(roster) == 0 {
		return g
	}

	live := make(map[string]domain.AgentState, len(statuses))
	for _, st := range statuses {
		if st.ID == "" {
			continue
		}
		live[st.ID] = domain.ParseAgentState(string(st.Status))
	}

	index := make(map[string]int, len(roster))
	for _, agent := range roster {
		if agent.ID == "" {
			continue
		}
		if _, dup := index[agent.ID]; dup {
			continue
		}
		index[agent.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{
			ID:     agent.ID,
			Name:   displayName(agent),
			Role:   agent.Role,
			Color:  agent.Color,
			Status: resolveStatus(agent, live),
		})
	}

	spawned := make(map[pairKey]bool)
	directed := make(map[pairKey]bool)
	for _, agent := range roster {
		src, ok := index[agent.ID]
		if !ok {
			continue
		}
		for _, targetID := range agent.Spawn {
			dst, ok := index[targetID]
			if !ok {
				continue
			}
			if directed[pairKey{a: agent.ID, b: targetID}] {
				continue
			}
			directed[pairKey{a: agent.ID, b: targetID}] = true
			g.Edges = append(g.Edges, Edge{
				Source: agent.ID,
				Target: targetID,
				Kind:   KindSpawn,
				Label:  fmt.Sprintf("%s can spawn %s", g.Nodes[src].Name, g.Nodes[dst].Name),
				Weight: SpawnWeight,
			})
			spawned[canonicalPair(agent.ID, targetID)] = true
		}
	}

	aliases := make(map[string]string)
	for _, agent := range roster {
		if agent.Alias != "" && agent.ID != "" {
			if _, taken := index[agent.Alias]; !taken {
				aliases[agent.Alias] = agent.ID
			}
		}
	}

	channels := newChannelIndex()
	for _, msg := range messages {
		agentID := msg.AgentID
		if id, ok := aliases[agentID]; ok {
			agentID = id
		}
		channels.add(msg.Channel, agentID)
	}
	for _, agent := range roster {
		for _, ch := range agent.Channels {
			channels.add(ch, agent.ID)
		}
	}

	type shared struct {
		channels []string
		count    int
	}
	pairs := make(map[pairKey]*shared)
	var order []pairKey
	for _, ch := range channels.order {
		members := channels.members[ch]
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				key := canonicalPair(members[i], members[j])
				acc, ok := pairs[key]
				if !ok {
					acc = &shared{}
					pairs[key] = acc
					order = append(order, key)
				}
				acc.channels = append(acc.channels, ch)
				acc.count++
			}
		}
	}

	for _, key := range order {
		if spawned[key] {
			continue
		}
		if _, ok := index[key.a]; !ok {
			continue
		}
		if _, ok := index[key.b]; !ok {
			continue
		}
		acc := pairs[key]
		g.Edges = append(g.Edges, Edge{
			Source:   key.a,
			Target:   key.b,
			Kind:     KindSharedChannel,
			Label:    "Shared: " + joinChannels(acc.channels),
			Weight:   float64(min(acc.count, SharedWeightCap)),
			Channels: acc.channels,
		})
	}
	return g
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

type channelIndex struct {
	order   []string
	members map[string][]string
	seen    map[string]map[string]bool
}

func newChannelIndex() *channelIndex {
	return &channelIndex{
		members: make(map[string][]string),
		seen:    make(map[string]map[string]bool),
	}
}

func (c *channelIndex) add(channel, agentID string) {
	channel = normalizeChannel(channel)
	if channel == "" || agentID == "" {
		return
	}
	set, ok := c.seen[channel]
	if !ok {
		set = make(map[string]bool)
		c.seen[channel] = set
		c.order = append(c.order, channel)
	}
	if set[agentID] {
		return
	}
	set[agentID] = true
	c.members[channel] = append(c.members[channel], agentID)
}

func normalizeChannel(ch string) string {
	return strings.TrimPrefix(strings.TrimSpace(ch), "#")
}

func joinChannels(channels []string) string {
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, "#"+ch)
	}
	return strings.Join(parts, ", ")
}

func displayName(agent domain.Agent) string {
	if strings.TrimSpace(agent.Name) != "" {
		return agent.Name
	}
	return agent.ID
}

func resolveStatus(agent domain.Agent, live map[string]domain.AgentState) domain.AgentState {
	if st, ok := live[agent.ID]; ok {
		return st
	}
	if agent.Alias != "" {
		if st, ok := live[agent.Alias]; ok {
			return st
		}
	}
	return domain.AgentStateOffline
}
