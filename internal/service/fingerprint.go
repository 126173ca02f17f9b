package service

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/domain"
)

// Fingerprinter derives the stable grouping digest for an event. Two events
// with the same message and the same top three stack frames always map to the
// same issue; frames beyond index 2 never affect the result.
type Fingerprinter struct{}

// NewFingerprinter creates a new fingerprinter
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// Fingerprint returns a 128-bit hex digest over the message and the top
// three normalized stack frames. MD5 is used for bucketing only; it is not
// a security primitive here.
func (f *Fingerprinter) Fingerprint(message string, frames []domain.StackFrame) string {
	parts := make([]string, 0, 4)
	parts = append(parts, message)
	for i := 0; i < 3 && i < len(frames); i++ {
		frame := frames[i]
		parts = append(parts, fmt.Sprintf("%s:%d:%d:%s", frame.File, frame.Line, frame.Column, frame.Function))
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
