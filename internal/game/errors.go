package game

import "errors"

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrNotAdmin          = errors.New("only the game admin can do that")
	ErrNotPlayer         = errors.New("not a player in this game")
	ErrGameNotWaiting    = errors.New("game already started")
	ErrGameNotActive     = errors.New("game is not active")
	ErrRoundNotActive    = errors.New("round is not active")
	ErrRoundStillOpen    = errors.New("current round is still open")
	ErrAlreadySubmitted  = errors.New("investment already submitted for this round")
	ErrInvalidAllocation = errors.New("invalid allocation")
	ErrUnknownCountry    = errors.New("unknown country")
	ErrInvalidName       = errors.New("name must not be empty")
)
