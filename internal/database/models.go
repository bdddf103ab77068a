package database

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Run is one classification batch over an uploaded file.
type Run struct {
	ID             string
	SourceFile     string
	TextField      string
	DateField      *string
	Headers        []string
	Total          int
	Processed      int
	Status         string
	AmbiguousDates int
	StartedAt      *string
	FinishedAt     *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Runs          int
	CompletedRuns int
	Responses     int
	Classified    int
	Errored       int
}
