package dto

import (
	"time"

	"chatlink/internal/app/services/chatlist"
	domainchat "chatlink/internal/domain/chat"
)

// ChatListEntry is one row of the rendered chat list: the viewer's summary
// with the resolved peer profile attached.
type ChatListEntry struct {
	ChatID      string      `json:"chat_id"`
	ReceiverID  string      `json:"receiver_id"`
	LastMessage string      `json:"last_message,omitempty"`
	UpdatedAt   int64       `json:"updated_at"`
	IsSeen      bool        `json:"is_seen"`
	User        UserProfile `json:"user"`
}

// ChatList is the full rendered list.
type ChatList struct {
	Items []ChatListEntry `json:"items"`
}

// ActiveChat is the pair returned after selecting an entry.
type ActiveChat struct {
	ChatID string      `json:"chat_id"`
	Peer   UserProfile `json:"peer"`
}

// ChatMessage is a single thread message.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessageList is a thread history page.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

func NewChatList(entries []chatlist.Entry) ChatList {
	list := ChatList{Items: make([]ChatListEntry, 0, len(entries))}
	for _, entry := range entries {
		list.Items = append(list.Items, ChatListEntry{
			ChatID:      string(entry.Summary.ChatID),
			ReceiverID:  string(entry.Summary.ReceiverID),
			LastMessage: entry.Summary.LastMessage,
			UpdatedAt:   entry.Summary.UpdatedAt.UnixMilli(),
			IsSeen:      entry.Summary.IsSeen,
			User:        PublicProfile(entry.User),
		})
	}
	return list
}

func NewChatMessage(message domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:        message.ID,
		ChatID:    string(message.ChatID),
		SenderID:  string(message.SenderID),
		Text:      message.Text,
		CreatedAt: message.CreatedAt,
	}
}

func NewChatMessageList(messages []domainchat.Message) ChatMessageList {
	list := ChatMessageList{Items: make([]ChatMessage, 0, len(messages))}
	for _, message := range messages {
		list.Items = append(list.Items, NewChatMessage(message))
	}
	return list
}
