package client

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChats() []model.ConversationView {
	return []model.ConversationView{
		{ID: "d1", Members: []model.UserRef{{ID: "me"}, {ID: "ann", Name: "Ann Lee", ProfilePic: "ann.png"}}},
		{ID: "g1", IsGroup: true, Members: []model.UserRef{{ID: "ann"}, {ID: "bob"}}},
		{ID: "d2", Members: []model.UserRef{{ID: "bob", Name: "Bobby"}}},
		{ID: "d3", Members: []model.UserRef{{ID: ""}, {ID: "ghost"}}},
		{ID: "d4", Members: []model.UserRef{{ID: "me"}}},
	}
}

func TestFriendsOf(t *testing.T) {
	friends := FriendsOf(sampleChats(), "me")
	require.Len(t, friends, 2)
	assert.Equal(t, Friend{ID: "ann", Name: "Ann Lee", ProfilePic: "ann.png", ConversationID: "d1"}, friends[0])
	assert.Equal(t, Friend{ID: "bob", Name: "Bobby", ProfilePic: DefaultProfilePic, ConversationID: "d2"}, friends[1])
}

func TestSearchFriends(t *testing.T) {
	friends := FriendsOf(sampleChats(), "me")

	assert.Len(t, SearchFriends(friends, "", nil), 2)

	got := SearchFriends(friends, "  LEE ", nil)
	require.Len(t, got, 1)
	assert.Equal(t, "ann", got[0].ID)

	got = SearchFriends(friends, "", []Friend{{ID: "ann"}})
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].ID)

	assert.Empty(t, SearchFriends(friends, "zzz", nil))
}

type recordingEmitter struct {
	events []realtime.NewMessage
	failOn string
}

func (e *recordingEmitter) Emit(_ context.Context, event string, data any) error {
	msg := data.(realtime.NewMessage)
	if msg.Receiver == e.failOn {
		return errors.New("boom")
	}
	if event == realtime.EventNewMessage {
		e.events = append(e.events, msg)
	}
	return nil
}

func TestBroadcastEmitsOnePerFriend(t *testing.T) {
	em := &recordingEmitter{}
	b := &Broadcaster{Emitter: em}

	sent, err := b.Broadcast(t.Context(), sampleChats(), "me", "hello all")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []realtime.NewMessage{
		{ConversationID: "d1", Sender: "me", Text: "hello all", Receiver: "ann"},
		{ConversationID: "d2", Sender: "me", Text: "hello all", Receiver: "bob"},
	}, em.events)
}

func TestBroadcastRejectsBlankAndJoinsErrors(t *testing.T) {
	em := &recordingEmitter{failOn: "ann"}
	b := &Broadcaster{Emitter: em}

	_, err := b.Broadcast(t.Context(), sampleChats(), "me", "  ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, em.events)

	sent, err := b.Broadcast(t.Context(), sampleChats(), "me", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ann")
	assert.Equal(t, 1, sent)
}

func TestGroupDraftSelection(t *testing.T) {
	d := NewGroupDraft(nil, nil, "me")
	require.NoError(t, d.Add(Friend{ID: "ann"}))
	require.ErrorIs(t, d.Add(Friend{ID: "ann"}), ErrAlreadySelected)
	require.NoError(t, d.Add(Friend{ID: "bob"}))
	d.Remove("ann")
	assert.Equal(t, []Friend{{ID: "bob"}}, d.Selected())

	d.SetName("Trip")
	_, err := d.Submit(t.Context())
	require.ErrorIs(t, err, ErrIncompleteGroup)
}

func TestChatListUpsertMovesToFront(t *testing.T) {
	l := NewChatList(nil)
	l.Prepend(model.ConversationView{ID: "a"})
	l.Prepend(model.ConversationView{ID: "b"})
	l.Upsert(model.ConversationView{ID: "a", LatestMessage: "new"})
	l.Upsert(model.ConversationView{ID: "c"})

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].ID)
	assert.Equal(t, "a", snap[1].ID)
	assert.Equal(t, "new", snap[1].LatestMessage)
	assert.Equal(t, "b", snap[2].ID)
}
