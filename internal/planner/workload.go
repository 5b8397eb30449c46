package planner

import "math"

// LectureHours is the fixed share of a course workload covered by lectures.
const LectureHours = 33

// WorkloadTarget is the total course workload in hours for a difficulty level
// (1 easy, 2 medium, 3 hard).
func WorkloadTarget(difficulty int) int {
	switch difficulty {
	case 1:
		return 100
	case 3:
		return 160
	default:
		return 130
	}
}

// SelfStudyHours is the workload left after lectures.
func SelfStudyHours(difficulty int) int {
	hours := WorkloadTarget(difficulty) - LectureHours
	if hours < 0 {
		return 0
	}
	return hours
}

// HoursFromPoints converts a deadline's points into study hours as its share of
// totalPoints applied to the course self-study budget. Non-positive inputs yield 0.
func HoursFromPoints(points, totalPoints, selfStudyHours int) int {
	if points <= 0 || totalPoints <= 0 || selfStudyHours <= 0 {
		return 0
	}
	return int(math.Round(float64(selfStudyHours) * float64(points) / float64(totalPoints)))
}
