package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	SessionMocap    SessionType = "mocap"
	SessionLongform SessionType = "longform"
	SessionVeloday  SessionType = "veloday"
	SessionRecovery SessionType = "recovery"
	SessionOther    SessionType = "other"
)

// SessionType is the kind of collection session a file belongs to
type SessionType string

// SessionTypes lists the known session types in display order
var SessionTypes = []SessionType{SessionMocap, SessionLongform, SessionVeloday, SessionRecovery, SessionOther}

var (
	ErrEmptyTraqID        = errors.New("TraqID cannot be empty")
	ErrInvalidTraqID      = errors.New("TraqID must be alphanumeric")
	ErrEmptyAthleteName   = errors.New("athlete name cannot be empty")
	ErrInvalidAthleteName = errors.New("athlete name must contain only letters and spaces")
	ErrUnknownSessionType = errors.New("unknown session type")
)

// ParseSessionType returns the session type named s
func ParseSessionType(s string) (SessionType, error) {
	for _, t := range SessionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: '%s'", ErrUnknownSessionType, s)
}

// FileInfo identifies a collection session for naming its export file
type FileInfo struct {
	Date        time.Time
	TraqID      string
	Athlete     string
	SessionType SessionType
}

// Validate reports every problem with the info at once
func (fi FileInfo) Validate() error {
	var errs []error

	traqID := strings.TrimSpace(fi.TraqID)
	switch {
	case traqID == "":
		errs = append(errs, ErrEmptyTraqID)
	case !isAlphanumeric(traqID):
		errs = append(errs, ErrInvalidTraqID)
	}

	athlete := strings.TrimSpace(fi.Athlete)
	switch {
	case athlete == "":
		errs = append(errs, ErrEmptyAthleteName)
	case strings.ContainsFunc(athlete, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsSpace(r) }):
		errs = append(errs, ErrInvalidAthleteName)
	}

	if _, err := ParseSessionType(string(fi.SessionType)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Filename returns the name MMDDYY_<TraqID>_<FirstLast>_<type>.csv. Only the
// first and last word of the athlete name are kept.
func (fi FileInfo) Filename() (string, error) {
	if err := fi.Validate(); err != nil {
		return "", fmt.Errorf("invalid file info: %w", err)
	}

	parts := strings.Fields(fi.Athlete)
	name := parts[0]
	if len(parts) > 1 {
		name += parts[len(parts)-1]
	}

	return fmt.Sprintf("%s_%s_%s_%s.csv", fi.Date.Format("010206"), strings.TrimSpace(fi.TraqID), name, fi.SessionType), nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
