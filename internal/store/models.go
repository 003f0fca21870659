package store

import "time"

type User struct {
	ID          string
	Identity    string
	DisplayName string
	Address     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Setting struct {
	UserID                 string
	Language               string
	TimeZone               string
	WeeklyBeginning        int
	NextWeekInterpretation int
	WeekendInterpretation  int
	Theme                  string
	DailyTaskNumber        int
	Holiday                int
	Karma                  int
	VacationMode           bool
}

// DefaultSetting is the row created for every new user at signup.
func DefaultSetting(userID string) Setting {
	return Setting{
		UserID:                 userID,
		Language:               "ja",
		TimeZone:               "Asia/Tokyo",
		WeeklyBeginning:        1,
		NextWeekInterpretation: 1,
		WeekendInterpretation:  6,
		Theme:                  "light",
		DailyTaskNumber:        5,
	}
}

type Project struct {
	ID           string
	CreatorID    string
	Name         string
	Color        string
	Icon         string
	Index        int
	Comment      string
	IsCompPublic bool
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProjectSet names one of the per-viewer membership relations of a project.
type ProjectSet string

const (
	ProjectFavorites ProjectSet = "project_favorites"
	ProjectArchives  ProjectSet = "project_archives"
)

type Section struct {
	ID        string
	ProjectID string
	Name      string
	Deleted   bool
	Archived  bool
	CreatedAt time.Time
	// Joined for responses
	ProjectName string
}

type Task struct {
	ID              string
	UserID          string
	ProjectID       string
	SectionID       *string
	Content         string
	Comment         string
	Priority        int
	Deadline        *time.Time
	Remind          *time.Time
	Completed       bool
	Deleted         bool
	IsCompSubPublic bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Label struct {
	ID        string
	AuthorID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Karma struct {
	ID        string
	UserID    string
	Activity  string
	Point     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DefaultCategory struct {
	ID    string
	Name  string
	Color string
	Icon  string
	Index int
}
