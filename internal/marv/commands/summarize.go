package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidHours is returned when the hours argument of /summarize is not
// a positive number. The command is rejected without touching any state.
var ErrInvalidHours = errors.New("invalid hours argument")

// SummarizeUsage is the user-visible rejection for malformed arguments.
const SummarizeUsage = "Usage: /summarize [hours] [lang] — hours must be a positive number, e.g. /summarize 2 ru"

// SummarizeArgs is the parsed argument set of a /summarize command.
type SummarizeArgs struct {
	// Hours is the explicit window length; meaningful only when HasHours.
	Hours float64
	// HasHours distinguishes an explicit window from the automatic one.
	HasHours bool
	// Lang is the requested language code, empty when none was given.
	Lang string
}

// ParseSummarizeArgs interprets "/summarize [hours] [lang]" arguments.
// knownLang reports whether a code has a configured language; it lets a
// lone language code ("/summarize ru") stand in for the hours position.
// Unknown language codes are NOT an error here — the caller falls back to
// the default language and tells the user.
func ParseSummarizeArgs(args []string, knownLang func(string) bool) (SummarizeArgs, error) {
	var out SummarizeArgs

	switch len(args) {
	case 0:
		return out, nil

	case 1:
		if h, err := strconv.ParseFloat(args[0], 64); err == nil {
			if h <= 0 {
				return out, fmt.Errorf("%w: %q", ErrInvalidHours, args[0])
			}
			out.Hours = h
			out.HasHours = true
			return out, nil
		}
		// Not a number: accept it as a language code when configured,
		// otherwise it is a malformed hours argument.
		if knownLang != nil && knownLang(strings.ToLower(args[0])) {
			out.Lang = strings.ToLower(args[0])
			return out, nil
		}
		return out, fmt.Errorf("%w: %q", ErrInvalidHours, args[0])

	default:
		h, err := strconv.ParseFloat(args[0], 64)
		if err != nil || h <= 0 {
			return out, fmt.Errorf("%w: %q", ErrInvalidHours, args[0])
		}
		out.Hours = h
		out.HasHours = true
		out.Lang = strings.ToLower(args[1])
		return out, nil
	}
}
