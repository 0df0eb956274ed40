package types_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sneh-joshi/remindd/internal/types"
)

func TestStatus_JSONUsesStringForm(t *testing.T) {
	rem := types.Reminder{
		ID:        "01JTESTULIDULIDULIDULIDULI",
		Name:      "standup",
		At:        1000,
		Status:    types.StatusPending,
		CreatedAt: 500,
	}
	data, err := json.Marshal(&rem)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"status":"PENDING"`) {
		t.Fatalf("status must serialize as a string, got: %s", data)
	}

	var back types.Reminder
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Status != types.StatusPending {
		t.Errorf("round-trip status: want PENDING, got %v", back.Status)
	}
}

func TestStatus_UnmarshalRejectsNumbers(t *testing.T) {
	var s types.Status
	if err := json.Unmarshal([]byte(`1`), &s); err == nil {
		t.Fatal("expected error unmarshalling a numeric status")
	}
}

func TestParseStatus_CaseInsensitive(t *testing.T) {
	cases := []struct {
		in   string
		want types.Status
	}{
		{"PENDING", types.StatusPending},
		{"pending", types.StatusPending},
		{"Pending", types.StatusPending},
		{"FIRED", types.StatusFired},
		{"fired", types.StatusFired},
	}
	for _, tc := range cases {
		got, err := types.ParseStatus(tc.in)
		if err != nil {
			t.Errorf("ParseStatus(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseStatus(%q): want %v, got %v", tc.in, tc.want, got)
		}
	}
	if _, err := types.ParseStatus("DONE"); err == nil {
		t.Error("ParseStatus(DONE): want error")
	}
}
