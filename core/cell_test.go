package core

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndirectionRecordTryAcquire(t *testing.T) {
	t.Parallel()
	var rec IndirectionRecord
	rec.Type = reflect.TypeOf(int(0))

	_, ok := rec.TryAcquire()
	assert.False(t, ok, "fresh record with no backing pointer must not acquire")

	var b byte
	rec.Rebase(&b)
	p, ok := rec.TryAcquire()
	assert.True(t, ok)
	assert.Equal(t, &b, p)
}

func TestIndirectionRecordMarkFreed(t *testing.T) {
	t.Parallel()
	var rec IndirectionRecord
	var b byte
	rec.Rebase(&b)

	rec.MarkFreed()
	_, ok := rec.TryAcquire()
	assert.False(t, ok, "freed record must refuse further acquisition")
}

func TestIndirectionRecordRebasePreservesIdentity(t *testing.T) {
	t.Parallel()
	rec := &IndirectionRecord{}
	var a, b byte
	rec.Rebase(&a)
	first := rec
	rec.Rebase(&b)

	assert.Same(t, first, rec, "rebase must never change the record's own address")
	p, ok := rec.TryAcquire()
	assert.True(t, ok)
	assert.Equal(t, &b, p)
}
