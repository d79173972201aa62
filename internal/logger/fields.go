package logger

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldSessionID is the key for the interview session (conversation thread) id.
	FieldSessionID = "session_id"
	// FieldChatID is the key for the Telegram chat id.
	FieldChatID = "chat_id"
	// FieldTurnID correlates all log lines written while handling one turn.
	FieldTurnID = "turn_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the fields that describe the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the common AI fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// SessionFields returns the fields identifying a session and the chat it belongs to.
// Zero ids are omitted.
func SessionFields(sessionID, chatID int64) []zap.Field {
	var session, chat string
	if sessionID != 0 {
		session = strconv.FormatInt(sessionID, 10)
	}
	if chatID != 0 {
		chat = strconv.FormatInt(chatID, 10)
	}

	return StringFields(
		StringField{Key: FieldSessionID, Value: session},
		StringField{Key: FieldChatID, Value: chat},
	)
}

// WithSession attaches the session fields to the provided logger.
func WithSession(logger *zap.Logger, sessionID, chatID int64) *zap.Logger {
	return WithFields(logger, SessionFields(sessionID, chatID)...)
}
