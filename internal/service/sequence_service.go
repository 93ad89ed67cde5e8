package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type sequenceRepository interface {
	Next(ctx context.Context, prefix string) (int, error)
}

// CodeService derives the human-readable identifiers used across the
// pipeline: date-scoped enrollment codes, year-scoped student codes and
// guardian usernames.
type CodeService struct {
	sequences sequenceRepository
	now       func() time.Time
	randInt   func(n int) int
}

// NewCodeService constructs a CodeService.
func NewCodeService(sequences sequenceRepository) *CodeService {
	return &CodeService{
		sequences: sequences,
		now:       func() time.Time { return time.Now().UTC() },
		randInt:   rand.Intn,
	}
}

// NextEnrollCode allocates the next STUEN-<YYYYMMDD>-<NNN> code for today.
func (s *CodeService) NextEnrollCode(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("STUEN-%s", s.now().Format("20060102"))
	value, err := s.sequences.Next(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%03d", prefix, value), nil
}

// NextStudentCode allocates the next STU-<YY><NNN> code for this year.
func (s *CodeService) NextStudentCode(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("STU-%s", s.now().Format("06"))
	value, err := s.sequences.Next(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, value), nil
}

// Username derives a login from a guardian's full name: the last name token
// followed by the initials of the preceding tokens, diacritics stripped,
// plus a random two-digit suffix to lower collision probability. Uniqueness
// is enforced by the accounts table, not here.
func (s *CodeService) Username(fullName string) string {
	slug := usernameSlug(fullName)
	if slug == "" {
		slug = "guardian"
	}
	return fmt.Sprintf("%s%02d", slug, 10+s.randInt(90))
}

var vietnameseD = strings.NewReplacer("đ", "d", "Đ", "D")

func usernameSlug(fullName string) string {
	folded := stripDiacritics(vietnameseD.Replace(fullName))
	tokens := strings.Fields(folded)
	if len(tokens) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(tokens[len(tokens)-1])
	for _, token := range tokens[:len(tokens)-1] {
		b.WriteRune([]rune(token)[0])
	}
	return strings.ToLower(b.String())
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
