package diagnostics

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/nakbase/paper-review-service/internal/llm"
)

type fakePinger struct {
	err    error
	called bool
}

func (p *fakePinger) Ping(_ context.Context) error {
	p.called = true
	return p.err
}

func TestCheckerProbesAllDependencies(t *testing.T) {
	pinger := &fakePinger{}
	checker := NewChecker(pinger, llm.NewMockEmbedder(4), &llm.OfflineGenerator{Mode: "demo"}, zerolog.Nop())

	checker.Run(context.Background())
	assert.True(t, pinger.called)
}

func TestCheckerSurvivesFailingDependencies(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	checker := NewChecker(pinger, llm.NewMockEmbedder(4), &llm.OfflineGenerator{Mode: "demo"}, zerolog.Nop())

	// Must not panic; failures are logged only.
	checker.Run(context.Background())
	assert.True(t, pinger.called)
}
