package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultline/faultline/internal/domain"
)

func TestFingerprintStable(t *testing.T) {
	f := NewFingerprinter()
	frames := []domain.StackFrame{
		{File: "app.js", Line: 10, Column: 5, Function: "handler"},
		{File: "router.js", Line: 22, Column: 1, Function: "dispatch"},
	}

	first := f.Fingerprint("boom", frames)
	second := f.Fingerprint("boom", frames)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
}

func TestFingerprintSensitivity(t *testing.T) {
	f := NewFingerprinter()
	base := []domain.StackFrame{
		{File: "app.js", Line: 10, Column: 5, Function: "handler"},
	}

	tests := []struct {
		name    string
		message string
		frames  []domain.StackFrame
		differs bool
	}{
		{
			name:    "different message",
			message: "other boom",
			frames:  base,
			differs: true,
		},
		{
			name:    "different line in top frame",
			message: "boom",
			frames:  []domain.StackFrame{{File: "app.js", Line: 11, Column: 5, Function: "handler"}},
			differs: true,
		},
		{
			name:    "no frames",
			message: "boom",
			frames:  nil,
			differs: true,
		},
		{
			name:    "identical",
			message: "boom",
			frames:  base,
			differs: false,
		},
	}

	reference := f.Fingerprint("boom", base)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Fingerprint(tt.message, tt.frames)
			if tt.differs {
				assert.NotEqual(t, reference, got)
			} else {
				assert.Equal(t, reference, got)
			}
		})
	}
}

func TestFingerprintIgnoresFramesBeyondTopThree(t *testing.T) {
	f := NewFingerprinter()
	top := []domain.StackFrame{
		{File: "a.js", Line: 1, Function: "a"},
		{File: "b.js", Line: 2, Function: "b"},
		{File: "c.js", Line: 3, Function: "c"},
	}
	deep := append(append([]domain.StackFrame{}, top...),
		domain.StackFrame{File: "d.js", Line: 4, Function: "d"},
		domain.StackFrame{File: "e.js", Line: 5, Function: "e"},
	)

	assert.Equal(t, f.Fingerprint("boom", top), f.Fingerprint("boom", deep))
}

func TestFingerprintInAppFlagDoesNotAffectGrouping(t *testing.T) {
	f := NewFingerprinter()
	inApp := []domain.StackFrame{{File: "a.js", Line: 1, Function: "a", InApp: true}}
	vendor := []domain.StackFrame{{File: "a.js", Line: 1, Function: "a", InApp: false}}

	assert.Equal(t, f.Fingerprint("boom", inApp), f.Fingerprint("boom", vendor))
}
