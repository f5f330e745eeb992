package detect

import "praetor/internal/history"

// State is the process-wide mutable evaluation state: windowed history
// stores and the nuke accumulator. Empty on startup and never persisted;
// a restart simply forgets in-flight windows. Constructed once and
// injected into the evaluator, never reached through package globals.
type State struct {
	Messages      *history.Store
	Duplicates    *history.Store
	Joins         *history.Store
	VoiceJoins    *history.Store
	Threads       *history.Store
	Reactions     *history.Store
	RoleCreates   *history.Store
	ChannelCreate *history.Store
	Nuke          *history.NukeData
}

func NewState(maxKeys int) *State {
	return &State{
		Messages:      history.New(maxKeys),
		Duplicates:    history.New(maxKeys),
		Joins:         history.New(maxKeys),
		VoiceJoins:    history.New(maxKeys),
		Threads:       history.New(maxKeys),
		Reactions:     history.New(maxKeys),
		RoleCreates:   history.New(maxKeys),
		ChannelCreate: history.New(maxKeys),
		Nuke:          history.NewNukeData(),
	}
}

// WithClock points every store at the same clock, for tests.
func (s *State) WithClock(clock history.Clock) {
	s.Messages.WithClock(clock)
	s.Duplicates.WithClock(clock)
	s.Joins.WithClock(clock)
	s.VoiceJoins.WithClock(clock)
	s.Threads.WithClock(clock)
	s.Reactions.WithClock(clock)
	s.RoleCreates.WithClock(clock)
	s.ChannelCreate.WithClock(clock)
	s.Nuke.WithClock(clock)
}
