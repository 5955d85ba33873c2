package model

import (
	"fmt"
	"time"
)

// Round identifies one of the three game rounds.
type Round string

const (
	RoundSingle Round = "single"
	RoundDouble Round = "double"
	RoundFinal  Round = "final"
)

// ParseRound validates a round name received from a client.
func ParseRound(s string) (Round, error) {
	switch Round(s) {
	case RoundSingle, RoundDouble, RoundFinal:
		return Round(s), nil
	default:
		return "", fmt.Errorf("unknown round %q", s)
	}
}

// WagerCap returns the minimum daily double wager ceiling for the round.
// A player's score raises the effective ceiling when it exceeds the cap.
func (r Round) WagerCap() int {
	if r == RoundDouble {
		return 2000
	}
	return 1000
}

// Episode is a read-only catalog entry: one airing with its full board.
type Episode struct {
	ID            int64
	Season        int
	EpisodeNumber int
	AirDate       *time.Time
	Title         string
}

// Category groups clues under one heading within a round.
// Position is the column index 0..5; the final round has exactly one category.
type Category struct {
	ID        int64
	EpisodeID int64
	Name      string
	RoundType Round
	Position  int
	Clues     []Clue
}

// Clue is a single board cell. Position is the row index 0..4.
// The catalog DailyDouble flag is informational only; the authoritative
// daily double positions for a session live in its daily_doubles set.
type Clue struct {
	ID          int64
	CategoryID  int64
	Value       int
	Question    string
	Answer      string
	Position    int
	DailyDouble bool
}
