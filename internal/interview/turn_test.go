package interview

import (
	"errors"
	"testing"
)

func TestParseTurn(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Turn
		wantErr bool
	}{
		{name: "plain json", raw: `{"question": "Why Go?", "finished": false}`, want: Turn{Question: "Why Go?"}},
		{name: "fenced json", raw: "```json\n{\"question\": \"Thanks!\", \"finished\": true}\n```", want: Turn{Question: "Thanks!", Finished: true}},
		{name: "surrounding whitespace", raw: "  {\"question\": \" Next? \", \"finished\": false}\n", want: Turn{Question: "Next?"}},
		{name: "missing finished", raw: `{"question": "Why Go?"}`, wantErr: true},
		{name: "blank question", raw: `{"question": "  ", "finished": false}`, wantErr: true},
		{name: "empty closing remark", raw: `{"question": "", "finished": true}`, want: Turn{Finished: true}},
		{name: "prose", raw: `Sure! What is your experience?`, wantErr: true},
		{name: "wrong type", raw: `{"question": "Why?", "finished": "no"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTurn(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedReply) {
					t.Fatalf("expected malformed reply error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTurnEncodeRoundTrip(t *testing.T) {
	turn := Turn{Question: "Thank you, Ann!", Finished: true}
	got, err := ParseTurn(turn.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != turn {
		t.Fatalf("expected %+v, got %+v", turn, got)
	}
}
