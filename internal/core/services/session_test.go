package services

import (
	"testing"

	"famcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fire(s *Session, event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(event)
}

func TestSession_CallerLifecycle(t *testing.T) {
	s := newSession("c1", domain.RoleCaller, "bob")
	assert.Equal(t, domain.StateIdle, s.State())

	assert.True(t, fire(s, eventDial))
	assert.Equal(t, domain.StateDialing, s.State())

	assert.True(t, fire(s, eventConnect))
	assert.Equal(t, domain.StateConnecting, s.State())

	assert.True(t, fire(s, eventEstablish))
	assert.Equal(t, domain.StateActive, s.State())

	assert.True(t, fire(s, eventReconnect))
	assert.Equal(t, domain.StateReconnecting, s.State())

	assert.True(t, fire(s, eventRecover))
	assert.Equal(t, domain.StateActive, s.State())

	assert.True(t, fire(s, eventEnd))
	assert.Equal(t, domain.StateEnded, s.State())
}

func TestSession_CalleeLifecycle(t *testing.T) {
	s := newSession("c1", domain.RoleCallee, "alice")

	assert.True(t, fire(s, eventRing))
	assert.Equal(t, domain.StateRinging, s.State())

	assert.True(t, fire(s, eventConnect))
	assert.True(t, fire(s, eventEstablish))
	assert.Equal(t, domain.StateActive, s.State())
}

func TestSession_IllegalTransitionsAbsorbed(t *testing.T) {
	s := newSession("c1", domain.RoleCaller, "bob")

	// Cannot establish or reconnect from idle.
	assert.False(t, fire(s, eventEstablish))
	assert.False(t, fire(s, eventReconnect))
	assert.False(t, fire(s, eventRecover))
	assert.Equal(t, domain.StateIdle, s.State())

	fire(s, eventDial)
	// A second dial on the same session is absorbed.
	assert.False(t, fire(s, eventDial))
	assert.Equal(t, domain.StateDialing, s.State())
}

func TestSession_EndedIsTerminal(t *testing.T) {
	s := newSession("c1", domain.RoleCaller, "bob")
	fire(s, eventDial)
	require.True(t, fire(s, eventEnd))

	for _, event := range []string{eventDial, eventRing, eventConnect, eventEstablish, eventReconnect, eventRecover, eventEnd} {
		assert.False(t, fire(s, event), "event %q must not leave ended", event)
		assert.Equal(t, domain.StateEnded, s.State())
	}
}

func TestSession_EndReachableFromEveryState(t *testing.T) {
	paths := map[string][]string{
		"idle":         nil,
		"dialing":      {eventDial},
		"ringing":      {eventRing},
		"connecting":   {eventDial, eventConnect},
		"active":       {eventDial, eventConnect, eventEstablish},
		"reconnecting": {eventDial, eventConnect, eventEstablish, eventReconnect},
	}

	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			s := newSession("c1", domain.RoleCaller, "bob")
			for _, event := range path {
				require.True(t, fire(s, event))
			}
			assert.True(t, fire(s, eventEnd))
			assert.Equal(t, domain.StateEnded, s.State())
		})
	}
}

func TestSession_CandidateBufferPreservesOrder(t *testing.T) {
	s := newSession("c1", domain.RoleCaller, "bob")
	link := newFakeLink()

	c1 := &domain.ICECandidate{Candidate: "candidate:1"}
	c2 := &domain.ICECandidate{Candidate: "candidate:2"}
	c3 := &domain.ICECandidate{Candidate: "candidate:3"}

	s.mu.Lock()
	s.link = link
	s.bufferCandidateLocked(c1)
	s.bufferCandidateLocked(c2)
	s.bufferCandidateLocked(nil) // end-of-candidates marker
	s.bufferCandidateLocked(c3)
	err := s.flushCandidatesLocked()
	s.mu.Unlock()

	require.NoError(t, err)
	got := link.candidates()
	require.Len(t, got, 4, "no candidate may be dropped, including the end marker")
	assert.Equal(t, []*domain.ICECandidate{c1, c2, nil, c3}, got)

	s.mu.Lock()
	assert.True(t, s.candidatesFlushed)
	assert.Empty(t, s.pendingRemoteCandidates)
	s.mu.Unlock()
}

func TestSession_InfoSnapshot(t *testing.T) {
	s := newSession("c1", domain.RoleCallee, "alice")
	fire(s, eventRing)

	info := s.Info()
	assert.Equal(t, domain.CallID("c1"), info.ID)
	assert.Equal(t, domain.RoleCallee, info.Role)
	assert.Equal(t, domain.UserID("alice"), info.Remote)
	assert.Equal(t, domain.StateRinging, info.State)
	assert.False(t, info.StartedAt.IsZero())
}

func TestHandle_SetMutedRequiresMedia(t *testing.T) {
	s := newSession("c1", domain.RoleCaller, "bob")
	h := &handle{s: s}

	assert.ErrorIs(t, h.SetMuted(domain.MediaKindVideo, true), domain.ErrMediaAccessDenied)

	media := newFakeMedia(2)
	s.mu.Lock()
	s.media = media
	s.mu.Unlock()

	require.NoError(t, h.SetMuted(domain.MediaKindVideo, true))
	assert.True(t, media.UserDisabled(domain.MediaKindVideo))

	// Preset application must not re-enable a user-muted track.
	media.ApplyPreset(domain.DefaultTierPresets()[domain.TierExcellent])
	assert.False(t, media.Enabled(domain.MediaKindVideo))

	s.mu.Lock()
	s.cleanupExecuted = true
	s.mu.Unlock()
	assert.ErrorIs(t, h.SetMuted(domain.MediaKindAudio, true), domain.ErrCallAlreadyEnded)
}
