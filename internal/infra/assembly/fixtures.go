package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/matching"
)

type applicationFixture struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	EmployerID    string `json:"employer_id"`
	ApplicantID   string `json:"applicant_id"`
	ApplicantName string `json:"applicant_name"`
	Headline      string `json:"headline"`
	AppliedAt     string `json:"applied_at"`
}

// LoadApplicationFixtures stores the pending applications listed in path.
// A missing file is not an error.
func LoadApplicationFixtures(ctx context.Context, factory uow.UoWFactory, path string, logger *slog.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("application fixtures file not found, skipping", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []applicationFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}

	loaded := 0
	err = support.WithUnit(ctx, factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		for i, fx := range fixtures {
			app, err := matching.NewApplication(matching.CreateParams{
				ID:            matching.ApplicationID(fx.ID),
				JobID:         fx.JobID,
				EmployerID:    fx.EmployerID,
				ApplicantID:   fx.ApplicantID,
				ApplicantName: fx.ApplicantName,
				Headline:      fx.Headline,
				AppliedAt:     parseFixtureTime(fx.AppliedAt, time.Now().UTC().Add(time.Duration(i-len(fixtures))*time.Minute)),
			})
			if err != nil {
				logger.Error("fixture invalid", "application_id", fx.ID, "error", err)
				continue
			}
			if err := unit.Applications().Save(ctx, app); err != nil {
				return fmt.Errorf("store application %s: %w", fx.ID, err)
			}
			loaded++
		}
		return nil
	})
	return loaded, err
}

func parseFixtureTime(value string, fallback time.Time) time.Time {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return fallback
}

// DefaultFixturesPath looks for data/applications.json from the working
// directory.
func DefaultFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "applications.json"),
		filepath.Join("..", "..", "data", "applications.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
