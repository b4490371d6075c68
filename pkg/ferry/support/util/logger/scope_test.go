package logger_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetFlags(0)
	logger.SetOutput(&buf)
	defer func() {
		logger.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()
	fn()
	return buf.String()
}

func TestScope_FormatIncludesPathTagAndSortedDetails(t *testing.T) {
	s := logger.NewScope("worker_rec-1").Child("transfer").WithCorrelationID("abc")

	got := s.Format("moved rows", "SRC_TO_STG", map[string]interface{}{"rows": 10, "a": "x"})

	assert.Equal(t, "[worker_rec-1 > transfer] [cid=abc] [SRC_TO_STG] moved rows {a=x, rows=10}", got)
}

func TestScope_ChildDoesNotMutateParent(t *testing.T) {
	parent := logger.NewScope("root")
	_ = parent.Child("a")
	b := parent.Child("b")

	assert.Equal(t, "root", parent.Name())
	assert.Equal(t, "root > b", b.Name())
}

func TestScope_WithDetailsMergesBase(t *testing.T) {
	s := logger.NewScope("job").WithDetails(map[string]interface{}{"record": "r1"})

	got := s.Format("hello", "", map[string]interface{}{"phase": "audit"})

	assert.Equal(t, "[job] hello {phase=audit, record=r1}", got)
}

func TestWithScope_ThreadsThroughContext(t *testing.T) {
	ctx := logger.NewContext(context.Background(), logger.NewScope("dispatch"))
	ctx, s := logger.WithScope(ctx, "job_001")

	assert.Equal(t, "dispatch > job_001", s.Name())
	assert.Same(t, s, logger.FromContext(ctx))
}

func TestFromContext_DefaultsToRoot(t *testing.T) {
	assert.Equal(t, "ferry", logger.FromContext(context.Background()).Name())
}

func TestScope_ConcurrentScopesAreIndependent(t *testing.T) {
	root := logger.NewScope("batch")
	var wg sync.WaitGroup
	names := make([]string, 8)
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := logger.NewContext(context.Background(), root)
			_, s := logger.WithScope(ctx, string(rune('a'+i)))
			names[i] = s.Name()
		}(i)
	}
	wg.Wait()
	for i, n := range names {
		assert.Equal(t, "batch > "+string(rune('a'+i)), n)
	}
}

func TestLevels_FilterOutput(t *testing.T) {
	defer logger.SetLogLevel("INFO")
	logger.SetLogLevel("ERROR")

	out := captureOutput(t, func() {
		s := logger.NewScope("lvl")
		s.Info("hidden", "", nil)
		s.Critical("shown", "TAG", nil)
	})

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[CRITICAL] [lvl] [TAG] shown")
}
