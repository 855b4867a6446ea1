// Package code produces the task and completion codes shown to workers.
package code

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"

	// Marker prefixes every task code so workers copy it exactly.
	Marker = "#"
)

// Generator produces random task codes. It holds no state beyond its
// configured shape and gives no uniqueness guarantee; collision
// handling, if any, belongs to the caller.
type Generator struct {
	nLetters int
	nDigits  int
}

// NewGenerator creates a generator producing codes of the given shape.
func NewGenerator(nLetters, nDigits int) *Generator {
	return &Generator{nLetters: nLetters, nDigits: nDigits}
}

// Generate returns a fresh random code: the marker followed by
// uppercase letters then digits, e.g. "#ABC12345".
func (g *Generator) Generate() string {
	var b strings.Builder
	b.WriteString(Marker)
	for i := 0; i < g.nLetters; i++ {
		b.WriteByte(letters[rand.Intn(len(letters))])
	}
	for i := 0; i < g.nDigits; i++ {
		b.WriteByte(digits[rand.Intn(len(digits))])
	}
	return b.String()
}

// Filename returns the stored filename for a task code: the code
// without its marker plus a .jpg extension.
func Filename(code string) string {
	return strings.TrimPrefix(code, Marker) + ".jpg"
}

// CompletionCode derives the code a worker hands back after finishing:
// COMP-<last 4 of worker id>-<zero-padded count>-<timestamp base36>.
func CompletionCode(workerID string, completedImages int, now time.Time) string {
	hash := workerID
	if len(hash) > 4 {
		hash = hash[len(hash)-4:]
	}
	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	return strings.ToUpper(fmt.Sprintf("COMP-%s-%02d-%s", hash, completedImages, stamp))
}

// FormatDuration renders a duration in seconds as "XmYs".
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
