// Package progress scores how close a player's submission is to the goal
// file of a race.
package progress

import (
	"errors"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// ErrInvalidUTF8 marks a submission that does not decode as UTF-8 text.
// Submissions like this are dropped, never scored.
var ErrInvalidUTF8 = errors.New("progress: buffer is not valid UTF-8")

// Score returns the normalized similarity between goal and submission:
//
//	1 - distance(goal, submission) / max(len(goal), len(submission))
//
// where distance is the Levenshtein edit distance over runes. 1.0 means the
// submission matches the goal exactly, 0.0 means nothing matches.
func Score(goal, submission []byte) (float64, error) {
	if !utf8.Valid(goal) || !utf8.Valid(submission) {
		return 0, ErrInvalidUTF8
	}

	g, s := string(goal), string(submission)
	if g == s {
		return 1.0, nil
	}

	distance := levenshtein.ComputeDistance(g, s)
	longest := max(utf8.RuneCountInString(g), utf8.RuneCountInString(s))
	return 1.0 - float64(distance)/float64(longest), nil
}
