package attendance

import "time"

// RegisterStatus is the result kind of RegisterUser.
type RegisterStatus int

const (
	RegisterAlreadyInServer RegisterStatus = iota + 1
	RegisterLinkedServer
	RegisterNewUser
)

// RegisterOutcome is returned by RegisterUser.
type RegisterOutcome struct {
	Status     RegisterStatus
	User       User
	Membership Membership
}

// UnregisterStatus is the result kind of UnregisterUser.
type UnregisterStatus int

const (
	UnregisterNotRegistered UnregisterStatus = iota + 1
	UnregisterNotInServer
	Unregistered
)

// UnregisterOutcome is returned by UnregisterUser.
type UnregisterOutcome struct {
	Status UnregisterStatus
	User   *User
}

// RenameStatus is the result kind of ChangeUsername.
type RenameStatus int

const (
	RenameUserNotFound RenameStatus = iota + 1
	Renamed
)

// RenameOutcome is returned by ChangeUsername.
type RenameOutcome struct {
	Status      RenameStatus
	OldUsername string
	NewUsername string
}

// ClockInStatus is the terminal state reached by ClockIn.
type ClockInStatus int

const (
	ClockInTooEarly ClockInStatus = iota + 1
	ClockInNotRegistered
	ClockInNotInServer
	ClockInAlreadyDone
	ClockInImageRequired
	ClockInInvalidAttachment
	ClockInDuplicate
	ClockedIn
)

func (s ClockInStatus) String() string {
	switch s {
	case ClockInTooEarly:
		return "too_early"
	case ClockInNotRegistered:
		return "not_registered"
	case ClockInNotInServer:
		return "not_in_server"
	case ClockInAlreadyDone:
		return "already_clocked_in"
	case ClockInImageRequired:
		return "image_required"
	case ClockInInvalidAttachment:
		return "invalid_attachment"
	case ClockInDuplicate:
		return "duplicate"
	case ClockedIn:
		return "clocked_in"
	default:
		return "unknown"
	}
}

// ClockInOutcome is returned by ClockIn. Fields beyond Status are set only
// for the states that carry them.
type ClockInOutcome struct {
	Status       ClockInStatus
	LocalTime    time.Time
	Existing     time.Time
	Lateness     Lateness
	Record       Record
	User         User
	SameDayCount int
}
