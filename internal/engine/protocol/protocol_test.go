package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr bool
	}{
		{
			name:  "start session",
			input: `{"type":"start_session","task":"print hello","work_dir":"coding","config":{"max_turns":"3"}}`,
			want: StartSessionCommand{
				Type:    CommandStartSession,
				Task:    "print hello",
				WorkDir: "coding",
				Config:  map[string]string{"max_turns": "3"},
			},
		},
		{
			name:    "start session without task",
			input:   `{"type":"start_session"}`,
			wantErr: true,
		},
		{
			name:  "cancel",
			input: `{"type":"cancel_request","session_id":"abc"}`,
			want:  CancelRequestCommand{Type: CommandCancelRequest, SessionID: "abc"},
		},
		{
			name:    "cancel without session",
			input:   `{"type":"cancel_request"}`,
			wantErr: true,
		},
		{
			name:  "get config",
			input: `{"type":"get_config"}`,
			want:  GetConfigCommand{Type: CommandGetConfig},
		},
		{
			name:    "save config requires values",
			input:   `{"type":"save_config","config":{}}`,
			wantErr: true,
		},
		{
			name:    "unknown",
			input:   `{"type":"user_message"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `start`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeCommand() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarshalEvent(t *testing.T) {
	ev := NewExecutionEvent("s1", 2, 1, []BlockResult{{Lang: "python", ExitCode: 1, Stderr: "boom", Status: "failed"}})
	data, err := MarshalEvent(ev)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "execution" || got["session_id"] != "s1" {
		t.Errorf("unexpected envelope: %s", data)
	}
	if ev.GetType() != EventExecution {
		t.Errorf("GetType() = %s", ev.GetType())
	}

	done, _ := MarshalEvent(NewDoneEvent("s1", "max_turns", 10, ""))
	if string(done) != `{"type":"done","session_id":"s1","reason":"max_turns","turns":10}` {
		t.Errorf("done event = %s", done)
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == "" || a == b {
		t.Errorf("session IDs not unique: %q %q", a, b)
	}
}
