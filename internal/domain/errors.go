package domain

import "errors"

var (
	ErrPollNotFound  = errors.New("poll not found")
	ErrVoteNotFound  = errors.New("vote not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrPollInactive  = errors.New("poll is not active")
	ErrInvalidOption = errors.New("option does not belong to poll")
	ErrNotPollOwner  = errors.New("not the owner of this poll")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrInvalidInput  = errors.New("invalid input")
)
