package mocks

import (
	"sync"

	"github.com/benmeehan/vmdevice-agent/internal/services"
)

// RecordingDisplay is a Display that records what it was asked to show and
// answers credential prompts from a fixed queue.
type RecordingDisplay struct {
	mu       sync.Mutex
	statuses []string
	updates  []services.DeviceUpdate
	prompts  []services.PromptReason
	answers  []string
}

// NewRecordingDisplay returns a display answering prompts with answers in
// order. Once the queue is empty every prompt is declined.
func NewRecordingDisplay(answers ...string) *RecordingDisplay {
	return &RecordingDisplay{answers: answers}
}

func (d *RecordingDisplay) ShowStatus(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, message)
}

func (d *RecordingDisplay) ShowDevices(update services.DeviceUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, update)
}

func (d *RecordingDisplay) PromptCredential(host string, reason services.PromptReason) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = append(d.prompts, reason)
	if len(d.answers) == 0 {
		return "", false
	}
	answer := d.answers[0]
	d.answers = d.answers[1:]
	return answer, true
}

func (d *RecordingDisplay) Statuses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statuses...)
}

func (d *RecordingDisplay) Updates() []services.DeviceUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]services.DeviceUpdate(nil), d.updates...)
}

func (d *RecordingDisplay) Prompts() []services.PromptReason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]services.PromptReason(nil), d.prompts...)
}
