package scan_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/tbckr/dixcover/internal/scan"
	"github.com/tbckr/dixcover/internal/testutil"
)

type fakeSource struct {
	name    string
	enabled bool
	called  *int32
	err     error
	panics  bool
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Enabled() bool   { return f.enabled }
func (f *fakeSource) Ingest(ctx context.Context, db *sqlx.DB, apex string) error {
	atomic.AddInt32(f.called, 1)
	if f.panics {
		panic("boom")
	}
	return f.err
}

func TestRun_SkipsDisabledSources(t *testing.T) {
	var calledA, calledB int32
	a := &fakeSource{name: "a", enabled: true, called: &calledA}
	b := &fakeSource{name: "b", enabled: false, called: &calledB}

	c := scan.New(nil, testutil.NopLogger(), time.Second, nil, a, b)
	c.Run(context.Background(), "example.com", "manual")

	assert.EqualValues(t, 1, calledA)
	assert.EqualValues(t, 0, calledB)
}

func TestRun_OneSourceFailingDoesNotStopOthers(t *testing.T) {
	var calledA, calledB, calledC int32
	a := &fakeSource{name: "a", enabled: true, called: &calledA, err: errors.New("boom")}
	b := &fakeSource{name: "b", enabled: true, called: &calledB, panics: true}
	cc := &fakeSource{name: "c", enabled: true, called: &calledC}

	coordinator := scan.New(nil, testutil.NopLogger(), time.Second, nil, a, b, cc)
	coordinator.Run(context.Background(), "example.com", "manual")

	assert.EqualValues(t, 1, calledA)
	assert.EqualValues(t, 1, calledB)
	assert.EqualValues(t, 1, calledC)
}
