package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSequences struct {
	values  map[string]int
	lastKey string
	err     error
}

func (f *fakeSequences) Next(ctx context.Context, prefix string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.values == nil {
		f.values = map[string]int{}
	}
	f.values[prefix]++
	f.lastKey = prefix
	return f.values[prefix], nil
}

func newTestCodeService(seq *fakeSequences) *CodeService {
	svc := NewCodeService(seq)
	svc.now = func() time.Time {
		return time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	}
	svc.randInt = func(n int) int { return 32 }
	return svc
}

func TestNextEnrollCodeShape(t *testing.T) {
	seq := &fakeSequences{}
	svc := newTestCodeService(seq)

	code, err := svc.NextEnrollCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "STUEN-20250101-001", code)
	assert.Equal(t, "STUEN-20250101", seq.lastKey)

	code, err = svc.NextEnrollCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "STUEN-20250101-002", code)
}

func TestNextEnrollCodeSequenceError(t *testing.T) {
	seq := &fakeSequences{err: errors.New("db down")}
	svc := newTestCodeService(seq)

	_, err := svc.NextEnrollCode(context.Background())
	require.Error(t, err)
}

func TestNextStudentCodeShape(t *testing.T) {
	seq := &fakeSequences{}
	svc := newTestCodeService(seq)

	code, err := svc.NextStudentCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "STU-25001", code)
	assert.Equal(t, "STU-25", seq.lastKey)
}

func TestUsernameFromVietnameseName(t *testing.T) {
	svc := newTestCodeService(&fakeSequences{})

	assert.Equal(t, "annv42", svc.Username("Nguyễn Văn An"))
	assert.Equal(t, "dungtt42", svc.Username("Trần Thị Dung"))
	assert.Equal(t, "datd42", svc.Username("Đỗ Đạt"))
}

func TestUsernameSingleToken(t *testing.T) {
	svc := newTestCodeService(&fakeSequences{})
	assert.Equal(t, "lan42", svc.Username("Lan"))
}

func TestUsernameEmptyName(t *testing.T) {
	svc := newTestCodeService(&fakeSequences{})
	assert.Equal(t, "guardian42", svc.Username("   "))
}
