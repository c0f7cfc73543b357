package game

import "errors"

var (
	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrNoResults        = errors.New("no results to determine winner")
)
