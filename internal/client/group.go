package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chirino/conversation-service/internal/model"
)

var (
	// ErrAlreadySelected is returned when a friend is added to a draft twice.
	ErrAlreadySelected = errors.New("user already added")
	// ErrIncompleteGroup is returned when a draft has no name or fewer than two members.
	ErrIncompleteGroup = errors.New("group name and at least 2 members are required")
)

// GroupDraft collects the name and members of a group before it is created.
type GroupDraft struct {
	api    *API
	list   *ChatList
	selfID string

	mu       sync.Mutex
	name     string
	selected []Friend
}

// NewGroupDraft starts an empty draft. list may be nil.
func NewGroupDraft(api *API, list *ChatList, selfID string) *GroupDraft {
	return &GroupDraft{api: api, list: list, selfID: selfID}
}

// SetName sets the group name.
func (d *GroupDraft) SetName(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
}

// Add selects a friend.
func (d *GroupDraft) Add(f Friend) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.selected {
		if s.ID == f.ID {
			return ErrAlreadySelected
		}
	}
	d.selected = append(d.selected, f)
	return nil
}

// Remove deselects the friend with id.
func (d *GroupDraft) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.selected[:0]
	for _, s := range d.selected {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	d.selected = kept
}

// Selected returns a copy of the selected friends.
func (d *GroupDraft) Selected() []Friend {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Friend(nil), d.selected...)
}

// Submit creates the group, prepends it to the chat list and resets the draft.
func (d *GroupDraft) Submit(ctx context.Context) (*model.ConversationView, error) {
	d.mu.Lock()
	name := strings.TrimSpace(d.name)
	ids := make([]string, 0, len(d.selected)+1)
	for _, s := range d.selected {
		ids = append(ids, s.ID)
	}
	d.mu.Unlock()

	if name == "" || len(ids) < 2 {
		return nil, ErrIncompleteGroup
	}
	ids = append(ids, d.selfID)

	view, err := d.api.CreateGroup(ctx, name, ids)
	if err != nil {
		return nil, err
	}
	if d.list != nil {
		d.list.Prepend(*view)
	}

	d.mu.Lock()
	d.name = ""
	d.selected = nil
	d.mu.Unlock()
	return view, nil
}
