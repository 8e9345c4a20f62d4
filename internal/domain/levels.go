package domain

// Level is one step of the leveling table.
type Level struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	MinPoints int    `json:"minPoints"`
}

// Levels is ordered by MinPoints ascending.
var Levels = []Level{
	{Number: 1, Title: "Novice", MinPoints: 0},
	{Number: 2, Title: "Apprentice", MinPoints: 100},
	{Number: 3, Title: "Enthusiast", MinPoints: 250},
	{Number: 4, Title: "Scholar", MinPoints: 500},
	{Number: 5, Title: "Expert", MinPoints: 1000},
	{Number: 6, Title: "Master", MinPoints: 2000},
	{Number: 7, Title: "Grandmaster", MinPoints: 3500},
	{Number: 8, Title: "Sage", MinPoints: 5000},
	{Number: 9, Title: "Oracle", MinPoints: 7500},
	{Number: 10, Title: "Legend", MinPoints: 10000},
}

// LevelInfo describes where a point total sits in the table.
type LevelInfo struct {
	Level
	Points       int `json:"points"`
	NextAt       int `json:"nextAt,omitempty"`
	PointsToNext int `json:"pointsToNext"`
	Progress     int `json:"progress"` // percent of the way to the next level
}

// LevelFor looks up the level for a point total.
func LevelFor(points int) LevelInfo {
	if points < 0 {
		points = 0
	}
	idx := 0
	for i, l := range Levels {
		if points >= l.MinPoints {
			idx = i
		}
	}
	info := LevelInfo{Level: Levels[idx], Points: points}
	if idx == len(Levels)-1 {
		info.Progress = 100
		return info
	}
	next := Levels[idx+1].MinPoints
	span := next - Levels[idx].MinPoints
	info.NextAt = next
	info.PointsToNext = next - points
	info.Progress = (points - Levels[idx].MinPoints) * 100 / span
	return info
}
