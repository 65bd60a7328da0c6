package client

import (
	"strings"

	"github.com/chirino/conversation-service/internal/model"
)

// DefaultProfilePic is shown for friends without a picture.
const DefaultProfilePic = "https://via.placeholder.com/150"

// Friend is the peer of a direct conversation.
type Friend struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	ProfilePic     string `json:"profilePic"`
	ConversationID string `json:"conversationId"`
}

// FriendsOf projects the peers of every direct conversation in chats.
func FriendsOf(chats []model.ConversationView, selfID string) []Friend {
	friends := make([]Friend, 0, len(chats))
	for _, chat := range chats {
		if chat.IsGroup {
			continue
		}
		for _, m := range chat.Members {
			if m.ID == selfID {
				continue
			}
			if m.ID != "" {
				pic := m.ProfilePic
				if pic == "" {
					pic = DefaultProfilePic
				}
				friends = append(friends, Friend{
					ID:             m.ID,
					Name:           m.Name,
					Email:          m.Email,
					ProfilePic:     pic,
					ConversationID: chat.ID,
				})
			}
			break
		}
	}
	return friends
}

// SearchFriends drops already selected friends and, when query is not
// blank, keeps only names containing it case-insensitively.
func SearchFriends(friends []Friend, query string, selected []Friend) []Friend {
	skip := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		skip[s.ID] = struct{}{}
	}
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Friend, 0, len(friends))
	for _, f := range friends {
		if _, ok := skip[f.ID]; ok {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(f.Name), query) {
			continue
		}
		out = append(out, f)
	}
	return out
}
