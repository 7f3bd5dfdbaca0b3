package services

import (
	"fmt"
	"testing"
)

func TestWindowKeepsNewestExchanges(t *testing.T) {
	memory := NewConversationMemory(3)

	for i := 1; i <= 5; i++ {
		memory.Append("s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	window := memory.Window("s1")
	if len(window) != 3 {
		t.Fatalf("window size = %d, want 3", len(window))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if window[i].Question != want {
			t.Errorf("window[%d].Question = %q, want %q", i, window[i].Question, want)
		}
	}
}

func TestWindowOldestFirst(t *testing.T) {
	memory := NewConversationMemory(5)
	memory.Append("s1", "first", "a1")
	memory.Append("s1", "second", "a2")

	window := memory.Window("s1")
	if window[0].Question != "first" || window[1].Question != "second" {
		t.Errorf("window not oldest first: %q, %q", window[0].Question, window[1].Question)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	memory := NewConversationMemory(3)
	memory.Append("s1", "q", "a")

	if len(memory.Window("s2")) != 0 {
		t.Error("fresh session has exchanges")
	}
	if len(memory.Window("s1")) != 1 {
		t.Error("existing session lost its exchange")
	}
}

func TestClearKeepsSessionUsable(t *testing.T) {
	memory := NewConversationMemory(3)
	memory.Append("s1", "q", "a")
	memory.Clear("s1")

	if len(memory.Window("s1")) != 0 {
		t.Error("window not empty after clear")
	}
	memory.Append("s1", "q2", "a2")
	if len(memory.Window("s1")) != 1 {
		t.Error("session unusable after clear")
	}
}

func TestSetKnowledgeBaseKeepsWindow(t *testing.T) {
	// Switching the knowledge base is a metadata change only; the
	// conversation window carries over.
	memory := NewConversationMemory(3)
	memory.Append("s1", "q", "a")
	memory.SetKnowledgeBase("s1", "kb-one")
	memory.SetKnowledgeBase("s1", "kb-two")

	if got := memory.KnowledgeBase("s1"); got != "kb-two" {
		t.Errorf("knowledge base = %q, want kb-two", got)
	}
	if len(memory.Window("s1")) != 1 {
		t.Error("window lost on knowledge base switch")
	}
}

func TestCloseSessionForgetsEverything(t *testing.T) {
	memory := NewConversationMemory(3)
	memory.Append("s1", "q", "a")
	memory.SetKnowledgeBase("s1", "kb-one")
	memory.CloseSession("s1")

	if len(memory.Window("s1")) != 0 {
		t.Error("window survived close")
	}
	if memory.KnowledgeBase("s1") != "" {
		t.Error("knowledge base survived close")
	}
}

func TestWindowSizeFloor(t *testing.T) {
	memory := NewConversationMemory(0)
	memory.Append("s1", "q1", "a1")
	memory.Append("s1", "q2", "a2")

	window := memory.Window("s1")
	if len(window) != 1 {
		t.Fatalf("window size = %d, want floor of 1", len(window))
	}
	if window[0].Question != "q2" {
		t.Errorf("kept %q, want newest", window[0].Question)
	}
}
