// Package remote defines the contract of the survey backend consumed by the
// capture subsystem, together with the discriminated error taxonomy that
// drives the online/offline branching. The backend implementation itself is
// an external collaborator; tests substitute fakes.
package remote

import (
	"context"
	"time"

	"github.com/openfield/fieldsync/internal/capture/domain"
)

// Status is the lifecycle state of a respondent record.
type Status string

const (
	// StatusDraft marks a respondent whose session is still in progress.
	StatusDraft Status = "draft"
	// StatusCompleted marks a respondent whose responses were submitted.
	StatusCompleted Status = "completed"
)

// Respondent is the server-side identity of a survey participant.
type Respondent struct {
	DatabaseID   string `json:"database_id"`
	RespondentID string `json:"respondent_id"`
	Status       Status `json:"status"`
}

// RespondentData is the payload for creating a respondent.
type RespondentData struct {
	ProjectID      string   `json:"project_id"`
	RespondentID   string   `json:"respondent_id"`
	RespondentType string   `json:"respondent_type"`
	Commodities    []string `json:"commodities"`
	Country        string   `json:"country"`
}

// ResponseData is the payload for submitting one answered question.
type ResponseData struct {
	RespondentDBID string               `json:"respondent_db_id"`
	QuestionID     string               `json:"question_id"`
	Value          domain.ResponseValue `json:"value"`
}

// Response is the persisted record returned for a submitted answer.
type Response struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
}

// DraftData is the payload for saving a named in-progress draft.
type DraftData struct {
	ProjectID    string             `json:"project_id"`
	RespondentID string             `json:"respondent_id"`
	Name         string             `json:"name"`
	Responses    domain.ResponseMap `json:"responses"`
	SavedAt      time.Time          `json:"saved_at"`
}

// Project is one survey project as listed by the backend.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Country     string   `json:"country"`
	Commodities []string `json:"commodities"`
}

// QuestionFilters scopes generated questions to a bundle: the combination of
// respondent type, commodity, and country.
type QuestionFilters struct {
	RespondentType string
	Commodity      string
	Country        string
}

// Page bounds a paginated question read.
type Page struct {
	Offset int
	Limit  int
}

// Store is the remote survey API contract.
type Store interface {
	CreateRespondent(ctx context.Context, data RespondentData) (Respondent, error)
	// FindRespondent resolves the server-side record for a respondent id
	// within a project. Replay of queued responses depends on it when the
	// respondent record was created by an earlier replay or by a racing
	// device.
	FindRespondent(ctx context.Context, projectID, respondentID string) (Respondent, error)
	UpdateRespondentStatus(ctx context.Context, databaseID string, status Status) error
	SubmitResponse(ctx context.Context, data ResponseData) (Response, error)
	GetProjects(ctx context.Context) ([]Project, error)
	GetQuestions(ctx context.Context, projectID string) ([]domain.Question, error)
	GetQuestionsForRespondent(ctx context.Context, projectID string, filters QuestionFilters, page Page) ([]domain.Question, error)
	SaveDraftResponse(ctx context.Context, data DraftData) error
}
