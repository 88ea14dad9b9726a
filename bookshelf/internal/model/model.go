package model

type Status string

const (
	StatusToBeRead   Status = "tbr"
	StatusInProgress Status = "in-progress"
	StatusFinished   Status = "finished"
)

const DefaultTitle = "Untitled"

type Book struct {
	ID         string   `json:"id" db:"id"`
	Title      string   `json:"title" db:"title"`
	Author     *string  `json:"author" db:"author"`
	Genre      *string  `json:"genre" db:"genre"`
	Rating     int      `json:"rating" db:"rating"`
	Review     *string  `json:"review" db:"review"`
	Moods      []string `json:"moods" db:"moods"`
	Status     Status   `json:"status" db:"status"`
	StartDate  *Date    `json:"start_date" db:"start_date"`
	FinishDate *Date    `json:"finish_date" db:"finish_date"`
}

// BookInput is a create or patch request body. Every field records whether
// its key was present, so an absent key can be told apart from an empty value.
type BookInput struct {
	ID         Field[string]   `json:"id"`
	Title      Field[string]   `json:"title"`
	Author     Field[string]   `json:"author"`
	Genre      Field[string]   `json:"genre"`
	Rating     Field[Rating]   `json:"rating"`
	Review     Field[string]   `json:"review"`
	Moods      Field[[]string] `json:"moods"`
	Status     Field[Status]   `json:"status"`
	StartDate  Field[RawDate]  `json:"start_date"`
	FinishDate Field[RawDate]  `json:"finish_date"`
}

type CreateBookResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
