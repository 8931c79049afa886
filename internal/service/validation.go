package service

import (
	"strings"
	"unicode/utf8"

	"health-chat/internal/domain"
)

const (
	maxMessageLength = 4000
	maxTitleLength   = 200
	minPasswordLen   = 8
)

// normalizeConversation aplica los defaults de creacion y valida la forma.
func normalizeConversation(in domain.InsertConversation) (domain.InsertConversation, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Title = strings.TrimSpace(in.Title)
	if in.UserID == "" {
		in.UserID = domain.AnonymousUserID
	}
	if in.Title == "" {
		in.Title = domain.DefaultConversationTitle
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLength {
		return in, validationError("title too long")
	}
	return in, nil
}

func normalizeMessage(in domain.InsertMessage) (domain.InsertMessage, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.Content = strings.TrimSpace(in.Content)
	if !in.Role.Valid() {
		return in, validationError("role must be user or assistant")
	}
	if in.Content == "" {
		return in, validationError("content is required")
	}
	// El limite aplica a lo que escribe el usuario; las respuestas generadas no se recortan.
	if in.Role == domain.RoleUser && utf8.RuneCountInString(in.Content) > maxMessageLength {
		return in, validationError("content too long")
	}
	return in, nil
}

func normalizeUser(in domain.InsertUser) (domain.InsertUser, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	if in.Username == "" {
		return in, validationError("username is required")
	}
	if strings.ContainsAny(in.Username, " \t\n") {
		return in, validationError("username must not contain spaces")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return in, validationError("password too short")
	}
	return in, nil
}
