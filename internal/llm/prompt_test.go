package llm

import (
	"PhonePilot/internal/models"
	"fmt"
	"strings"
	"testing"
)

func sampleContext() StepContext {
	return StepContext{Goal: "open the weather app", StepNumber: 2, MaxSteps: 20}
}

func TestBuildUserMessageBasics(t *testing.T) {
	state := &models.ScreenState{
		ElementCount:    12,
		DominantPackage: "com.example.weather",
		Elements: []models.ScreenElement{
			{Text: "Search", Clickable: true, CenterX: 540, CenterY: 120},
			{ContentDesc: "Settings", Clickable: true, CenterX: 1000, CenterY: 120, ResourceID: "btn_settings"},
			{ClassName: "android.widget.ImageButton", Clickable: true, CenterX: 60, CenterY: 60},
		},
	}

	msg := BuildUserMessage(state, StepContext{
		Goal:       "open the weather app",
		Params:     map[string]interface{}{"city": "Berlin", "alert": true},
		StepNumber: 2,
		MaxSteps:   20,
	}, 4000)

	for _, want := range []string{
		"Task: open the weather app",
		"Step: 2 of 20",
		"- alert: true", // params sorted by key
		"- city: Berlin",
		"Total elements on screen: 12",
		"Dominant package on screen: com.example.weather",
		`"Search" at (540, 120) - clickable`,
		"(id=btn_settings)",
		"class=android.widget.ImageButton",
		"action: tap|type|swipe|press_key|wait|done|error",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Message missing %q", want)
		}
	}

	// Sorted parameter order is deterministic.
	if strings.Index(msg, "- alert:") > strings.Index(msg, "- city:") {
		t.Error("Parameters should be rendered in sorted key order")
	}
}

func TestBuildUserMessageTruncatesXML(t *testing.T) {
	xml := strings.Repeat("x", 5000)
	state := &models.ScreenState{XML: xml}

	msg := BuildUserMessage(state, sampleContext(), 4000)

	if !strings.Contains(msg, "### XML (truncated)") {
		t.Error("Expected a truncation marker heading")
	}
	if !strings.Contains(msg, "... [truncated]") {
		t.Error("Expected a truncation suffix")
	}
	if strings.Contains(msg, strings.Repeat("x", 4001)) {
		t.Error("XML should be cut at the configured limit")
	}

	short := BuildUserMessage(&models.ScreenState{XML: "<node/>"}, sampleContext(), 4000)
	if strings.Contains(short, "truncated") {
		t.Error("Short XML must not be marked truncated")
	}
}

func TestBuildUserMessageCapsElements(t *testing.T) {
	var elements []models.ScreenElement
	for i := 0; i < 40; i++ {
		elements = append(elements, models.ScreenElement{
			Text:      fmt.Sprintf("label %d", i),
			Clickable: true,
		})
	}
	for i := 0; i < 20; i++ {
		elements = append(elements, models.ScreenElement{
			ResourceID: fmt.Sprintf("icon_%d", i),
			Clickable:  true,
		})
	}
	state := &models.ScreenState{ElementCount: 60, Elements: elements}

	msg := BuildUserMessage(state, sampleContext(), 4000)

	if !strings.Contains(msg, `"label 24"`) {
		t.Error("Expected the 25th labeled element to be present")
	}
	if strings.Contains(msg, `"label 25"`) {
		t.Error("Labeled elements beyond 25 must be dropped")
	}
	if !strings.Contains(msg, "id=icon_9") {
		t.Error("Expected the 10th unlabeled clickable element to be present")
	}
	if strings.Contains(msg, "id=icon_10") {
		t.Error("Unlabeled clickable elements beyond 10 must be dropped")
	}
}
