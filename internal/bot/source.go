package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"
)

// SurveySource lists the surveys the bot should act on.
type SurveySource interface {
	List(ctx context.Context) ([]types.Survey, error)
}

// FileSource reads a JSON array of surveys from Path on every List.
type FileSource struct {
	Path string
}

func (f FileSource) List(ctx context.Context) ([]types.Survey, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read surveys: %w", err)
	}
	var surveys []types.Survey
	if err := json.Unmarshal(data, &surveys); err != nil {
		return nil, fmt.Errorf("parse surveys %s: %w", f.Path, err)
	}
	return surveys, nil
}

// LoadSurvey reads a single survey object from path.
func LoadSurvey(path string) (types.Survey, error) {
	var s types.Survey
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read survey: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse survey %s: %w", path, err)
	}
	return s, s.Validate()
}

// StaticSource serves a fixed list.
type StaticSource []types.Survey

func (s StaticSource) List(ctx context.Context) ([]types.Survey, error) {
	return s, nil
}
