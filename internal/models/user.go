package models

import (
	"time"

	"github.com/google/uuid"
)

// Learning goal the user is currently working towards
type Goal string

const (
	GoalTravel       Goal = "TRAVEL"
	GoalJobInterview Goal = "JOB_INTERVIEW"
	GoalIT           Goal = "IT"
	GoalBusiness     Goal = "BUSINESS"
	GoalDailyConvo   Goal = "DAILY_CONVERSATION"
	GoalGaming       Goal = "GAMING"
)

// ParseGoal returns the Goal for its wire name
func ParseGoal(s string) (Goal, bool) {
	switch Goal(s) {
	case GoalTravel, GoalJobInterview, GoalIT, GoalBusiness, GoalDailyConvo, GoalGaming:
		return Goal(s), true
	}
	return "", false
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Name           string
	Email          string
	HashedPassword string

	// Learning progress. Goal is nil until the user picks one
	CurrentGoal *Goal
	CurrentDay  int
	Streak      int
}
