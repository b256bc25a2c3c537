// Package bus is a small in-process pub/sub broker with retained messages,
// used to decouple the sink service from its consumers. Topics are paths;
// subscriptions may use "+" to match exactly one path element.
package bus

import (
	"strings"
	"sync"
)

// Wildcard matches one topic element in a subscription.
const Wildcard = "+"

// Topic is a path of string elements, e.g. {"pdsink", "main", "telemetry"}.
type Topic []string

// ParseTopic splits a "/"-separated path.
func ParseTopic(s string) Topic {
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func (t Topic) String() string { return strings.Join(t, "/") }

// Equal reports element-wise equality (no wildcard handling).
func (t Topic) Equal(o Topic) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// node is one trie level. Children are keyed by the literal element;
// wildcard subscriptions hang off the Wildcard key like any other child.
type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

type Bus struct {
	mu   sync.RWMutex
	root *node
	qLen int
}

// NewBus creates a bus with the given per-subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, el := range sub.topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[el]
		if !ok {
			child = &node{}
			n.children[el] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	// Replay retained messages the pattern already matches.
	for _, m := range b.retainedMatching(b.root, sub.topic) {
		deliver(sub, m)
	}
}

// retainedMatching walks the literal trie collecting retained messages under
// pattern. Wildcards in the pattern fan out over all children at that level.
func (b *Bus) retainedMatching(n *node, pattern Topic) []*Message {
	if len(pattern) == 0 {
		if n.retained != nil {
			return []*Message{n.retained}
		}
		return nil
	}
	var out []*Message
	el, rest := pattern[0], pattern[1:]
	if el == Wildcard {
		for key, child := range n.children {
			if key == Wildcard {
				continue // pattern branches hold no retained state
			}
			out = append(out, b.retainedMatching(child, rest)...)
		}
		return out
	}
	if child, ok := n.children[el]; ok {
		out = append(out, b.retainedMatching(child, rest)...)
	}
	return out
}

// Publish delivers a message to every matching subscription and updates the
// retained slot of its literal topic. A retained message with a nil payload
// clears the slot.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fanout(b.root, msg.Topic, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, el := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[el]
		if !ok {
			child = &node{}
			n.children[el] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// fanout delivers msg to subscriptions at the node reached by topic, taking
// both the literal branch and the wildcard branch at every level.
func (b *Bus) fanout(n *node, topic Topic, msg *Message) {
	if len(topic) == 0 {
		for _, sub := range n.subs {
			deliver(sub, msg)
		}
		return
	}
	if n.children == nil {
		return
	}
	if child, ok := n.children[topic[0]]; ok {
		b.fanout(child, topic[1:], msg)
	}
	if child, ok := n.children[Wildcard]; ok {
		b.fanout(child, topic[1:], msg)
	}
}

// deliver is drop-oldest on a full queue: slow consumers lose history, never
// block publishers.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, el := range sub.topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[el]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// Connection groups subscriptions under one owner so they can be torn down
// together.
type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage builds a message for Publish.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection. The topic may
// contain Wildcard elements.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
