// Package conversation tracks per-room message graphs built from reply,
// thread, edit and reaction relations.
package conversation

import (
	"sort"
	"sync"

	"github.com/vthunder/toolbot/internal/proposal"
)

// MessageNode is one observed message, user or bot authored
type MessageNode struct {
	EventID   string
	RoomID    string
	Sender    string
	Content   string
	Timestamp int64

	ReplyTo    string
	ThreadRoot string
	Replaces   string

	// Replies and Edits are filled in as other nodes reference this one.
	Replies   []string
	Edits     []string
	Reactions map[string][]string

	IsBotMessage bool
	ToolProposal proposal.Proposal
}

// MessageInput describes a message to insert
type MessageInput struct {
	EventID      string
	Sender       string
	Content      string
	Timestamp    int64
	ReplyTo      string
	ThreadRoot   string
	Replaces     string
	IsBotMessage bool
}

// Tree is the message graph of a single room
type Tree struct {
	roomID string

	mu          sync.RWMutex
	messages    map[string]*MessageNode
	threadRoots map[string]struct{}
	// root id -> sorted ids of nodes whose ThreadRoot is that root
	threadChildren map[string][]string
}

// NewTree creates an empty tree for a room
func NewTree(roomID string) *Tree {
	return &Tree{
		roomID:      roomID,
		messages:       make(map[string]*MessageNode),
		threadRoots:    make(map[string]struct{}),
		threadChildren: make(map[string][]string),
	}
}

// RoomID returns the room this tree belongs to
func (t *Tree) RoomID() string { return t.roomID }

// AddMessage inserts or overwrites a node and links it to its parents.
// Re-inserting an event never duplicates entries in parent child lists,
// and the child links and reactions of an overwritten node are kept.
func (t *Tree) AddMessage(in MessageInput) *MessageNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := &MessageNode{
		EventID:      in.EventID,
		RoomID:       t.roomID,
		Sender:       in.Sender,
		Content:      in.Content,
		Timestamp:    in.Timestamp,
		ReplyTo:      in.ReplyTo,
		ThreadRoot:   in.ThreadRoot,
		Replaces:     in.Replaces,
		Reactions:    make(map[string][]string),
		IsBotMessage: in.IsBotMessage,
	}
	if prev, ok := t.messages[in.EventID]; ok {
		node.Replies = prev.Replies
		node.Edits = prev.Edits
		node.Reactions = prev.Reactions
		node.ToolProposal = prev.ToolProposal
		t.unindexThreadMember(prev)
	}
	t.messages[in.EventID] = node
	if in.ThreadRoot != "" {
		t.threadChildren[in.ThreadRoot] = insertSorted(t.threadChildren[in.ThreadRoot], in.EventID)
	}

	if in.ReplyTo != "" {
		if parent, ok := t.messages[in.ReplyTo]; ok {
			parent.Replies = appendUnique(parent.Replies, in.EventID)
		}
	}
	if in.Replaces != "" {
		if orig, ok := t.messages[in.Replaces]; ok {
			orig.Edits = appendUnique(orig.Edits, in.EventID)
		}
	}

	if in.ThreadRoot != "" {
		t.threadRoots[in.ThreadRoot] = struct{}{}
	} else if in.ReplyTo == "" {
		t.threadRoots[in.EventID] = struct{}{}
	}
	return node
}

// AddReaction records sender under key. Unknown events are ignored.
func (t *Tree) AddReaction(eventID, key, sender string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.messages[eventID]
	if !ok {
		return false
	}
	node.Reactions[key] = appendUnique(node.Reactions[key], sender)
	return true
}

// SetProposal attaches a pending proposal to a node
func (t *Tree) SetProposal(eventID string, p proposal.Proposal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.messages[eventID]
	if !ok {
		return false
	}
	node.ToolProposal = p
	return true
}

// Get returns the node for an event
func (t *Tree) Get(eventID string) (*MessageNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.messages[eventID]
	return node, ok
}

// Has reports whether the event is in the tree
func (t *Tree) Has(eventID string) bool {
	_, ok := t.Get(eventID)
	return ok
}

// Len returns the number of nodes
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// ThreadRoots returns the root set, sorted
func (t *Tree) ThreadRoots() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	roots := make([]string, 0, len(t.threadRoots))
	for id := range t.threadRoots {
		roots = append(roots, id)
	}
	sort.Strings(roots)
	return roots
}

// ThreadContext walks up from eventID through ReplyTo (falling back to
// ThreadRoot) for at most maxDepth nodes and returns them oldest first.
func (t *Tree) ThreadContext(eventID string, maxDepth int) []*MessageNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var chain []*MessageNode
	current := eventID
	for len(chain) < maxDepth && current != "" {
		node, ok := t.messages[current]
		if !ok {
			break
		}
		chain = append(chain, node)
		if node.ReplyTo != "" {
			current = node.ReplyTo
		} else {
			current = node.ThreadRoot
		}
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Descendants returns every event reachable from eventID through reply edges
// or through nodes whose ThreadRoot is a visited node. The start event is not
// included. Cycles terminate.
func (t *Tree) Descendants(eventID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.descendantsLocked(eventID)
}

func (t *Tree) descendantsLocked(eventID string) []string {
	var out []string
	seen := map[string]bool{eventID: true}
	stack := []string{eventID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var next []string
		if node, ok := t.messages[current]; ok {
			next = append(next, node.Replies...)
		}
		next = append(next, t.threadMembersLocked(current)...)

		for _, id := range next {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
			stack = append(stack, id)
		}
	}
	return out
}

// threadMembersLocked returns nodes anchored to root, in a stable order
func (t *Tree) threadMembersLocked(root string) []string {
	return t.threadChildren[root]
}

func (t *Tree) unindexThreadMember(node *MessageNode) {
	if node.ThreadRoot == "" {
		return
	}
	members := t.threadChildren[node.ThreadRoot]
	i := sort.SearchStrings(members, node.EventID)
	if i == len(members) || members[i] != node.EventID {
		return
	}
	members = append(members[:i:i], members[i+1:]...)
	if len(members) == 0 {
		delete(t.threadChildren, node.ThreadRoot)
		return
	}
	t.threadChildren[node.ThreadRoot] = members
}

// HasBotResponse reports whether any descendant was written by the bot.
// Error replies count too.
func (t *Tree) HasBotResponse(eventID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasBotResponseLocked(eventID)
}

func (t *Tree) hasBotResponseLocked(eventID string) bool {
	for _, id := range t.descendantsLocked(eventID) {
		if node, ok := t.messages[id]; ok && node.IsBotMessage {
			return true
		}
	}
	return false
}

// answeredLocked walks the reply and thread edges backwards from every bot
// node, marking each ancestor as answered in one pass over the tree
func (t *Tree) answeredLocked() map[string]bool {
	parents := make(map[string][]string)
	var queue []string
	for id, node := range t.messages {
		for _, child := range node.Replies {
			parents[child] = append(parents[child], id)
		}
		if node.ThreadRoot != "" {
			parents[id] = append(parents[id], node.ThreadRoot)
		}
		if node.IsBotMessage {
			queue = append(queue, id)
		}
	}

	answered := make(map[string]bool)
	expanded := make(map[string]bool, len(queue))
	for len(queue) > 0 {
		current := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if expanded[current] {
			continue
		}
		expanded[current] = true
		for _, parent := range parents[current] {
			answered[parent] = true
			if !expanded[parent] {
				queue = append(queue, parent)
			}
		}
	}
	return answered
}

// PendingUserMessages returns user messages without any bot descendant,
// oldest first
func (t *Tree) PendingUserMessages() []*MessageNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	answered := t.answeredLocked()
	var pending []*MessageNode
	for id, node := range t.messages {
		if node.IsBotMessage || answered[id] {
			continue
		}
		pending = append(pending, node)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Timestamp != pending[j].Timestamp {
			return pending[i].Timestamp < pending[j].Timestamp
		}
		return pending[i].EventID < pending[j].EventID
	})
	return pending
}

// LatestEdit returns the most recently observed edit of eventID, or eventID
// itself when it was never edited. ok is false for unknown events.
// Order is observation order, not server time.
func (t *Tree) LatestEdit(eventID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.messages[eventID]
	if !ok {
		return "", false
	}
	if len(node.Edits) == 0 {
		return eventID, true
	}
	return node.Edits[len(node.Edits)-1], true
}

// FindEditOf returns the newest node that replaces originalID
func (t *Tree) FindEditOf(originalID string) (*MessageNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var found *MessageNode
	for _, node := range t.messages {
		if node.Replaces != originalID {
			continue
		}
		if found == nil || node.Timestamp > found.Timestamp ||
			(node.Timestamp == found.Timestamp && node.EventID > found.EventID) {
			found = node
		}
	}
	return found, found != nil
}

// RemoveMessage deletes a node and its root membership. Other nodes may keep
// dangling references to it.
func (t *Tree) RemoveMessage(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if node, ok := t.messages[eventID]; ok {
		t.unindexThreadMember(node)
	}
	delete(t.messages, eventID)
	delete(t.threadRoots, eventID)
}

// EditsOf returns the ids of every node that replaces originalID, oldest
// first. Unlike Edits it also finds edits whose original is unknown.
func (t *Tree) EditsOf(originalID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var edits []*MessageNode
	for _, node := range t.messages {
		if node.Replaces == originalID {
			edits = append(edits, node)
		}
	}
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].Timestamp != edits[j].Timestamp {
			return edits[i].Timestamp < edits[j].Timestamp
		}
		return edits[i].EventID < edits[j].EventID
	})
	ids := make([]string, len(edits))
	for i, n := range edits {
		ids[i] = n.EventID
	}
	return ids
}

// PendingCount returns the size of the startup backlog
func (t *Tree) PendingCount() int {
	return len(t.PendingUserMessages())
}

// insertSorted adds id to a sorted list unless present. The list is copied
// so slices handed out by threadMembersLocked stay valid.
func insertSorted(list []string, id string) []string {
	i := sort.SearchStrings(list, id)
	if i < len(list) && list[i] == id {
		return list
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, id)
	return append(out, list[i:]...)
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
