package roster

import (
	"context"
	"fmt"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
)

// Provider reads the student roster for a section. The roster is owned by
// the identity system; this service only consumes it.
type Provider interface {
	Students(ctx context.Context, sectionID string) ([]models.StudentRecord, error)
}

// CasdoorProvider reads students from the Casdoor organization the school
// manages its accounts in. Students carry their section in the user tag and
// their registration number in the ID card field.
type CasdoorProvider struct {
	client *casdoorsdk.Client
	logger utils.Logger
}

// CasdoorConfig carries the connection settings for the identity server
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Certificate  string
	Organization string
	Application  string
}

// NewCasdoorProvider creates a roster provider against a Casdoor server
func NewCasdoorProvider(cfg CasdoorConfig, logger utils.Logger) *CasdoorProvider {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorProvider{
		client: client,
		logger: logger,
	}
}

// Students returns the roster of one section. An empty sectionID returns the
// whole organization.
func (p *CasdoorProvider) Students(ctx context.Context, sectionID string) ([]models.StudentRecord, error) {
	users, err := p.client.GetUsers()
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}

	students := make([]models.StudentRecord, 0, len(users))
	for _, user := range users {
		if sectionID != "" && user.Tag != sectionID {
			continue
		}
		students = append(students, recordFromUser(user))
	}

	p.logger.Debug("roster loaded", "section_id", sectionID, "students", len(students))
	return students, nil
}

func recordFromUser(user *casdoorsdk.User) models.StudentRecord {
	name := user.DisplayName
	if name == "" {
		name = user.Name
	}
	id := user.Id
	if id == "" {
		id = user.Name
	}
	return models.StudentRecord{
		ID:                 id,
		Name:               name,
		RegistrationNumber: user.IdCard,
		SectionID:          user.Tag,
	}
}

// StaticProvider serves a fixed roster, used in tests and single-tenant
// deployments without an identity server
type StaticProvider struct {
	students []models.StudentRecord
}

func NewStaticProvider(students []models.StudentRecord) *StaticProvider {
	return &StaticProvider{students: students}
}

func (p *StaticProvider) Students(ctx context.Context, sectionID string) ([]models.StudentRecord, error) {
	if sectionID == "" {
		return p.students, nil
	}
	var filtered []models.StudentRecord
	for _, student := range p.students {
		if student.SectionID == sectionID {
			filtered = append(filtered, student)
		}
	}
	return filtered, nil
}
