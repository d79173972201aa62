package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spigell/hr-interview-bot/internal/utils"
)

var (
	// ErrMalformedReply is returned when the model reply does not match the turn format.
	ErrMalformedReply = errors.New("malformed structured reply")
	// ErrSessionFinished is returned when a finished session is advanced.
	ErrSessionFinished = errors.New("session is finished")
	// ErrNotStarted is returned when a session without history is advanced.
	ErrNotStarted = errors.New("session is not started")
	// ErrCorruptHistory is returned when the stored history cannot be resumed.
	ErrCorruptHistory = errors.New("corrupt session history")
)

// Turn is the structured reply of the interviewer: the next question (or the
// closing remark) and whether the interview is over.
type Turn struct {
	Question string `json:"question"`
	Finished bool   `json:"finished"`
}

type turnPayload struct {
	Question string `json:"question"`
	Finished *bool  `json:"finished" validate:"required"`
}

var validate = validator.New()

// ParseTurn decodes a model reply into a Turn. Markdown code fences around
// the JSON object are tolerated; anything else is ErrMalformedReply. A closing
// turn may come without a remark, an open one must carry a question.
func ParseTurn(raw string) (Turn, error) {
	var payload turnPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return Turn{}, fmt.Errorf("%w: %v (reply: %q)", ErrMalformedReply, err, utils.TruncateForLog(raw, 120))
	}

	payload.Question = strings.TrimSpace(payload.Question)
	if err := validate.Struct(payload); err != nil {
		return Turn{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if payload.Question == "" && !*payload.Finished {
		return Turn{}, fmt.Errorf("%w: question is empty", ErrMalformedReply)
	}

	return Turn{Question: payload.Question, Finished: *payload.Finished}, nil
}

// Encode renders the turn in the format the model is asked to answer with.
func (t Turn) Encode() string {
	raw, _ := json.Marshal(t)
	return string(raw)
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
