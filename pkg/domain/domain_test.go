package domain

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStageType(t *testing.T) {
	tests := []struct {
		raw     string
		want    StageType
		wantErr bool
	}{
		{"START", StageStart, false},
		{"end", StageEnd, false},
		{" Global ", StageGlobal, false},
		{"", StageNormal, false},
		{"FINAL", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStageType(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStage_CloneIsolatesEdges(t *testing.T) {
	s := Stage{ID: "a", NextStages: []NextStage{{TargetStageID: "b"}}}
	c := s.Clone()
	c.NextStages[0].TargetStageID = "z"

	assert.Equal(t, "b", s.NextStages[0].TargetStageID)
	assert.Equal(t, "a", c.Label(), "label falls back to id")
}

func TestSession_SnapshotIsDeep(t *testing.T) {
	s := NewSession("conv-1", "s0")
	s.Append(RoleUser, "hello")

	snap := s.Snapshot()
	snap.Append(RoleAssistant, "hi")
	snap.Messages[0].Text = "changed"

	assert.Len(t, s.Messages, 1)
	assert.Equal(t, "hello", s.Messages[0].Text)
	assert.Equal(t, "hi", snap.LastAssistantMessage())
	assert.Equal(t, StatusAwaitingInput, s.Status)
	assert.False(t, s.Ended())
}

func TestDecision_Validate(t *testing.T) {
	assert.NoError(t, Decision{Response: "ok", NextStage: "s1", Confidence: 0.5}.Validate())
	assert.Error(t, Decision{Response: "  ", NextStage: "s1"}.Validate())
	assert.NoError(t, Decision{Response: "ok", Confidence: 85}.Validate())
}

func TestDecision_Normalize(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.4, 0.4},
		{1, 1},
		{85, 0.85},
		{1.5, 0.015},
		{250, 1},
		{-0.1, 0},
		{math.NaN(), DefaultConfidence},
	}
	for _, tt := range tests {
		got := Decision{Response: "ok", Confidence: tt.in}.Normalize()
		assert.InDelta(t, tt.want, got.Confidence, 1e-9, "confidence %v", tt.in)
	}
}

func TestErrors_Unwrap(t *testing.T) {
	var err error = &ConfigError{Problems: []string{"no START stage"}}
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "no START stage")

	multi := &ConfigError{Problems: []string{"a", "b"}}
	assert.Contains(t, multi.Error(), "found 2 problems")

	assert.ErrorIs(t, &GraphError{Reason: "x"}, ErrGraph)
	assert.ErrorIs(t, &ResolutionError{Identifier: "x"}, ErrResolution)
	assert.ErrorIs(t, &TransitionRejected{From: "a", Proposed: "b", Substitute: "c"}, ErrTransitionRejected)

	upstream := &UpstreamFailure{StageID: "s1", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, upstream, ErrUpstream)
	assert.ErrorIs(t, upstream, io.ErrUnexpectedEOF)

	var target *UpstreamFailure
	wrapped := errors.Join(errors.New("turn"), upstream)
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, "s1", target.StageID)
}

func TestLifecycleHooks_Merge(t *testing.T) {
	var calls []string
	a := LifecycleHooks{OnStageEnter: func(context.Context, *StageEvent) { calls = append(calls, "a") }}
	b := LifecycleHooks{
		OnStageEnter:   func(context.Context, *StageEvent) { calls = append(calls, "b") },
		OnTurnComplete: func(context.Context, *TurnEvent) { calls = append(calls, "turn") },
	}

	merged := a.Merge(b)
	merged.OnStageEnter(context.Background(), &StageEvent{})
	merged.OnTurnComplete(context.Background(), &TurnEvent{})

	assert.Equal(t, []string{"a", "b", "turn"}, calls)
	assert.Nil(t, merged.OnDecision)
}
