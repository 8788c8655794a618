package scheduler

import "time"

// Timing contract shared by both play modes. These values are observable
// behavior, not tunables: both clients of an online room derive the same
// choreography from them independently.
const (
	// BombPreview is how long a placed bomb stays face-up before auto-hiding.
	BombPreview = 1000 * time.Millisecond

	// CardFlip is the duration of a single card flip animation.
	CardFlip = 600 * time.Millisecond

	// ThemeWave is the duration of the light/dark color transition.
	ThemeWave = 1200 * time.Millisecond

	// ClickUnblock is how long after a theme wave starts input stays locked.
	ClickUnblock = 1000 * time.Millisecond

	// PlaceToGuessDelay separates the second bomb placement from the phase flip.
	PlaceToGuessDelay = 1700 * time.Millisecond

	// RoundEndDelay separates the round result from the board reset.
	RoundEndDelay = 2500 * time.Millisecond

	// RoundEndInitial separates the round-deciding flip from the bomb reveal.
	RoundEndInitial = 800 * time.Millisecond
)
